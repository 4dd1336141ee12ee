// Copyright 2015-2017 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"github.com/sirupsen/logrus"

	"github.com/signature-opensource/ck-monitoring-go/core"
	"github.com/signature-opensource/ck-monitoring-go/internal/metrics"
)

// reconcile applies one incoming handler-configuration list against list,
// preserving handler identity where possible (§4.3 "Configuration
// reconciliation"). Existing handlers whose configuration is unchanged are
// never deactivated; handlers whose key changed, or that are dropped, are
// deactivated and replaced.
func reconcile(list *HandlerList, configs []core.HandlerConfiguration, factory core.HandlerFactory, services *core.Services, logger logrus.FieldLogger, reg *metrics.Registry) {
	remaining := append([]core.Handler{}, list.handlers...)
	keep := make([]core.Handler, 0, len(configs))
	claimed := make([]bool, len(configs))

	for ci, cfg := range configs {
		for hi := 0; hi < len(remaining); {
			h := remaining[hi]
			ok, err := h.ApplyConfiguration(cfg)
			if err != nil {
				logger.Errorf("dispatch: handler %q faulted during reconfiguration: %v", h.Identity(), err)
				reg.IncHandlerFault(h.Identity())
				if dErr := h.Deactivate(); dErr != nil {
					logger.Warnf("dispatch: handler %q failed to deactivate after fault: %v", h.Identity(), dErr)
				}
				remaining = append(remaining[:hi], remaining[hi+1:]...)
				continue
			}
			if ok {
				keep = append(keep, h)
				remaining = append(remaining[:hi], remaining[hi+1:]...)
				claimed[ci] = true
				break
			}
			hi++
		}
	}

	for _, h := range remaining {
		if err := h.Deactivate(); err != nil {
			logger.Warnf("dispatch: handler %q failed to deactivate during reconfiguration: %v", h.Identity(), err)
		}
	}

	list.replace(keep)

	for ci, cfg := range configs {
		if claimed[ci] {
			continue
		}
		h, err := factory(cfg, services)
		if err != nil {
			logger.Errorf("dispatch: failed to instantiate handler for %q: %v", cfg.Identity(), err)
			continue
		}
		if err := h.Activate(); err != nil {
			logger.Errorf("dispatch: handler %q failed to activate: %v", h.Identity(), err)
			continue
		}
		list.add(h)
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package statecache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/altairalabs/docproc/pkg/metrics"
)

// startHealthCheck launches the background PING loop. Callers hold c.mu.
func (c *Cache) startHealthCheck(client goredis.UniversalClient) {
	if c.cfg.HealthCheckInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopHealth = cancel
	c.healthDone = make(chan struct{})
	go c.healthLoop(ctx, client, c.healthDone)
}

// stopHealthCheck cancels the loop and waits for it to exit. Callers hold c.mu.
func (c *Cache) stopHealthCheck() {
	if c.stopHealth == nil {
		return
	}
	c.stopHealth()
	<-c.healthDone
	c.stopHealth = nil
	c.healthDone = nil
}

func (c *Cache) healthLoop(ctx context.Context, client goredis.UniversalClient, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
			err := client.Ping(pingCtx).Err()
			cancel()
			if ctx.Err() != nil {
				return
			}

			c.metrics.SetBackendUp(metrics.ComponentStateCache, err == nil)
			switch {
			case err != nil && healthy:
				c.log.Error(err, "state cache health check failed")
			case err == nil && !healthy:
				c.log.Info("state cache health check recovered")
			}
			healthy = err == nil
		}
	}
}

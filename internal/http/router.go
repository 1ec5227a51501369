/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/example/standup-pilot/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, h *Handlers) *gin.Engine {
    if cfg.AppEnv != "dev" {
        gin.SetMode(gin.ReleaseMode)
    }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    r.GET("/healthz", h.Health)
    r.GET("/jira/connect", h.Connect)
    r.GET("/jira/callback", h.Callback)
    r.DELETE("/jira/connection", h.Disconnect)

    api := r.Group("/api")
    {
        api.POST("/chat", h.Chat)
        api.GET("/issue-refs", h.IssueRefs)
    }
    return r
}

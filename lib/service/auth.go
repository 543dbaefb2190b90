// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/lighthouse/lib/secret"
)

// RequireBearer admits requests whose Authorization header carries
// "Bearer <token>" matching expected. The access_token query parameter
// is accepted as a fallback for homeservers that still send it.
func RequireBearer(expected *secret.Buffer, logger *slog.Logger, next http.Handler) http.Handler {
	if expected == nil || logger == nil || next == nil {
		panic("service.RequireBearer: expected, logger, and next are required")
	}
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !secret.Verify([]byte(bearerToken(request)), expected) {
			reject(writer, request, logger, "bearer")
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireHeaderSecret admits requests whose header matches expected.
func RequireHeaderSecret(header string, expected *secret.Buffer, logger *slog.Logger, next http.Handler) http.Handler {
	if header == "" || expected == nil || logger == nil || next == nil {
		panic("service.RequireHeaderSecret: header, expected, logger, and next are required")
	}
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !secret.Verify([]byte(request.Header.Get(header)), expected) {
			reject(writer, request, logger, header)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

func bearerToken(request *http.Request) string {
	if header := request.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return request.URL.Query().Get("access_token")
}

func reject(writer http.ResponseWriter, request *http.Request, logger *slog.Logger, scheme string) {
	logger.Warn("rejected unauthenticated request",
		"method", request.Method,
		"path", request.URL.Path,
		"remote_addr", request.RemoteAddr,
		"scheme", scheme,
	)
	writer.WriteHeader(http.StatusUnauthorized)
}

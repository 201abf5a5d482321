package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"apkd/internal/api"
	"apkd/internal/digest"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			lines = append(lines, "hint: verify APKD_UPLOAD_TOKEN (or --token) matches the server's upload token.")
		case http.StatusTooManyRequests:
			lines = append(lines, "hint: too many failed uploads from this address; wait for auth.block_duration before retrying.")
		case http.StatusNotFound:
			lines = append(lines, "hint: verify --server or APKD_SERVER_URL points to an apkd server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, digest.ErrMismatch) {
		lines = append(lines, "hint: the artifact changed or was corrupted in transit; retry, and re-upload if it persists.")
		return uniqueLines(lines)
	}

	if errors.Is(err, errNothingPublished) {
		lines = append(lines, "hint: publish a build first with: apkd upload <path>")
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase APKD_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an apkd server is running at APKD_SERVER_URL.",
			"hint: start a local server with: apkd srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

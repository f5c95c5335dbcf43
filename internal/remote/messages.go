// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import "fmt"

type messageEntry struct {
	generic string
	reasons map[string]string
}

// messageCatalog holds the user-facing text for classified errors, keyed
// by HTTP code with per-reason overrides.
var messageCatalog = map[int]messageEntry{
	400: {
		generic: "The storage service rejected the request as invalid.",
		reasons: map[string]string{
			ReasonInvalidGrant: "The storage credentials have expired or were revoked. Reconnect the storage account and try again.",
			"invalidParameter": "The storage service rejected a request parameter.",
		},
	},
	401: {
		generic: "The storage service did not accept the configured credentials. Reconnect the storage account.",
	},
	403: {
		generic: "Access to the backup folder was denied. Check the storage account permissions.",
		reasons: map[string]string{
			ReasonUserRateLimitExceeded:   "The storage rate limit for this account was exceeded. The request will be retried shortly.",
			ReasonRateLimitExceeded:       "The storage service rate limit was exceeded. The request will be retried shortly.",
			"dailyLimitExceeded":          "The daily storage API quota is used up. Backups resume when the quota resets.",
			"storageQuotaExceeded":        "The storage account is out of space. Free up space or raise the quota.",
			"insufficientFilePermissions": "The storage account cannot write to the backup folder.",
			"AccessDenied":                "Access to the backup bucket was denied. Check the bucket policy and keys.",
		},
	},
	404: {
		generic: "The backup archive was not found in remote storage.",
		reasons: map[string]string{
			"NoSuchBucket": "The configured backup bucket does not exist.",
		},
	},
	408: {generic: "The storage service timed out waiting for the request."},
	409: {generic: "The backup archive was changed concurrently. Try again."},
	429: {generic: "Too many requests to the storage service. Please wait before retrying."},
	500: {
		generic: "The storage service reported an internal error.",
		reasons: map[string]string{
			ReasonBackendError: "The storage backend failed temporarily. The request will be retried.",
		},
	},
	502: {generic: "The storage service could not be reached through its gateway."},
	503: {
		generic: "The storage service is temporarily unavailable.",
		reasons: map[string]string{
			ReasonCircuitOpen: "Remote storage calls are paused after repeated failures and will resume automatically.",
		},
	},
	504: {generic: "The storage service timed out."},
}

// Message returns the user-facing text for a classified error: a
// per-reason override, then the generic text for the code, then the
// upstream message, then a generic fallback.
func Message(code int, reason, upstream string) string {
	if entry, ok := messageCatalog[code]; ok {
		if msg, ok := entry.reasons[canonicalReason(reason)]; ok {
			return msg
		}
		if entry.generic != "" {
			return entry.generic
		}
	}
	if upstream != "" {
		return upstream
	}
	return fmt.Sprintf("API error (code %d)", code)
}

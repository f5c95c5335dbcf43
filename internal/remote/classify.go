// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

const errorInfoType = "type.googleapis.com/google.rpc.ErrorInfo"

// ResponseError is an unsuccessful HTTP response from a backend that talks
// to its store over plain HTTP.
type ResponseError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("remote returned HTTP %d", e.StatusCode)
}

// errorBody is the JSON error envelope used by Google APIs, in both the
// legacy (errors[]) and the structured (details[]) form.
type errorBody struct {
	Error struct {
		Code    int           `json:"code"`
		Message string        `json:"message"`
		Status  string        `json:"status"`
		Errors  []errorItem   `json:"errors"`
		Details []errorDetail `json:"details"`
	} `json:"error"`
}

type errorItem struct {
	Reason  string `json:"reason"`
	Domain  string `json:"domain"`
	Message string `json:"message"`
}

type errorDetail struct {
	Type     string            `json:"@type"`
	Reason   string            `json:"reason"`
	Domain   string            `json:"domain"`
	Metadata map[string]string `json:"metadata"`
}

// awsErrorStatus maps AWS error codes to HTTP status for errors that
// arrive without a response attached.
var awsErrorStatus = map[string]int{
	"NoSuchKey":          404,
	"NotFound":           404,
	"NoSuchBucket":       404,
	"AccessDenied":       403,
	"SlowDown":           503,
	"RequestTimeout":     408,
	"InternalError":      500,
	"ServiceUnavailable": 503,
}

// response is the common shape every recognized error is reduced to.
type response struct {
	status  int
	header  http.Header
	body    errorBody
	reason  string
	domain  string
	message string
}

// Classify converts any error returned by a remote call into an *APIError.
// Classifying an *APIError (or an error wrapping one) returns it as is.
func Classify(err error) *APIError {
	return classifyAt(err, time.Now())
}

func classifyAt(err error, now time.Time) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr
	}

	resp, ok := extractResponse(err)
	if !ok {
		return &APIError{
			Code:     500,
			Reason:   ReasonUnknown,
			Domain:   DomainApplication,
			Message:  err.Error(),
			Upstream: err.Error(),
			cause:    err,
		}
	}

	apiErr := &APIError{
		Code:   resp.status,
		Status: resp.body.Error.Status,
		Reason: resp.reason,
		Domain: resp.domain,
		cause:  err,
	}
	if apiErr.Code == 0 {
		apiErr.Code = resp.body.Error.Code
	}
	if apiErr.Code == 0 {
		apiErr.Code = 500
	}

	upstream := firstNonEmpty(resp.body.Error.Message, resp.message)
	if info, ok := resp.body.errorInfo(); ok {
		apiErr.Reason = info.Reason
		apiErr.Domain = info.Domain
		apiErr.Metadata = info.Metadata
	} else if len(resp.body.Error.Errors) > 0 {
		first := resp.body.Error.Errors[0]
		apiErr.Reason = firstNonEmpty(first.Reason, apiErr.Reason)
		apiErr.Domain = firstNonEmpty(first.Domain, apiErr.Domain)
		upstream = firstNonEmpty(first.Message, upstream)
	}
	apiErr.Reason = firstNonEmpty(apiErr.Reason, ReasonUnknown)
	apiErr.Domain = firstNonEmpty(apiErr.Domain, DomainGlobal)

	apiErr.RetryAfterSeconds = parseRetryAfter(headerValue(resp.header, "Retry-After"), now)
	apiErr.Upstream = upstream
	apiErr.Message = Message(apiErr.Code, apiErr.Reason, upstream)
	return apiErr
}

// extractResponse recognizes the error types of the SDKs used by the
// backends.
func extractResponse(err error) (response, bool) {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return response{
			status: respErr.StatusCode,
			header: respErr.Header,
			body:   parseErrorBody(respErr.Body),
		}, true
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return fromGoogleAPI(gErr), true
	}

	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		r := response{
			status:  400,
			reason:  tokenErr.ErrorCode,
			message: tokenErr.ErrorDescription,
		}
		if tokenErr.Response != nil {
			r.status = tokenErr.Response.StatusCode
			r.header = tokenErr.Response.Header
		}
		return r, true
	}

	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		r := response{
			reason:  smithyErr.ErrorCode(),
			domain:  "aws",
			message: smithyErr.ErrorMessage(),
		}
		var httpErr *awshttp.ResponseError
		if errors.As(err, &httpErr) {
			r.status = httpErr.HTTPStatusCode()
			if httpErr.Response != nil && httpErr.Response.Response != nil {
				r.header = httpErr.Response.Header
			}
		} else if status, ok := awsErrorStatus[smithyErr.ErrorCode()]; ok {
			r.status = status
		} else if smithyErr.ErrorFault() == smithy.FaultClient {
			r.status = 400
		}
		return r, true
	}

	var httpErr *awshttp.ResponseError
	if errors.As(err, &httpErr) {
		r := response{status: httpErr.HTTPStatusCode(), domain: "aws", message: httpErr.Error()}
		if httpErr.Response != nil && httpErr.Response.Response != nil {
			r.header = httpErr.Response.Header
		}
		return r, true
	}

	return response{}, false
}

func fromGoogleAPI(gErr *googleapi.Error) response {
	r := response{status: gErr.Code, header: gErr.Header, message: gErr.Message}
	if gErr.Body != "" {
		r.body = parseErrorBody([]byte(gErr.Body))
		if r.body.Error.Code != 0 || len(r.body.Error.Errors) > 0 || len(r.body.Error.Details) > 0 {
			return r
		}
	}

	// No usable body: rebuild the envelope from the decoded fields.
	r.body.Error.Code = gErr.Code
	r.body.Error.Message = gErr.Message
	for _, item := range gErr.Errors {
		r.body.Error.Errors = append(r.body.Error.Errors, errorItem{Reason: item.Reason, Message: item.Message})
	}
	for _, d := range gErr.Details {
		raw, err := json.Marshal(d)
		if err != nil {
			continue
		}
		var detail errorDetail
		if json.Unmarshal(raw, &detail) == nil {
			r.body.Error.Details = append(r.body.Error.Details, detail)
		}
	}
	return r
}

func parseErrorBody(b []byte) errorBody {
	var body errorBody
	if len(b) == 0 {
		return body
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return errorBody{}
	}
	return body
}

func (b errorBody) errorInfo() (errorDetail, bool) {
	for _, d := range b.Error.Details {
		if d.Type == errorInfoType && d.Reason != "" {
			return d, true
		}
	}
	return errorDetail{}, false
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Negative values
// are clamped to zero.
func parseRetryAfter(v string, now time.Time) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			n = 0
		}
		return &n
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return nil
	}
	secs := int(math.Ceil(t.Sub(now).Seconds()))
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// headerValue looks a header up case-insensitively, tolerating maps that
// were built without canonical keys.
func headerValue(h http.Header, key string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	for k, values := range h {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package api

import (
	"errors"
	"net/http"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// Envelope is the JSON body of every API response.
type Envelope map[string]any

// ErrorBody is the "error" member of a failed response.
type ErrorBody struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
	Desc  string `json:"desc"`
}

// Warning is attached to successful responses under "warnings".
type Warning struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
	Desc  string `json:"desc"`
}

func okList(list any) Envelope {
	return Envelope{"status": "ok", "list": list}
}

func okMap(fields Envelope) Envelope {
	fields["status"] = "ok"
	return fields
}

func success(fields Envelope) Envelope {
	if fields == nil {
		fields = Envelope{}
	}
	fields["status"] = "success"
	return fields
}

type errorArm struct {
	category apperr.Category
	status   int
	result   string
	kind     string
	desc     string
	value    func(err error) any
}

// errorArms is matched in order; the last arm catches everything.
var errorArms = []errorArm{
	{
		category: apperr.MissingScrobbleParameters,
		status:   http.StatusBadRequest,
		result:   "failure",
		kind:     "missing_scrobble_data",
		desc:     "The scrobble is missing needed parameters.",
		value: func(err error) any {
			var e *apperr.MissingScrobbleParametersError
			errors.As(err, &e)
			return e.Params
		},
	},
	{
		category: apperr.MissingEntityParameter,
		status:   http.StatusBadRequest,
		result:   "error",
		kind:     "missing_entity_parameter",
		desc:     "This API call is not valid without an entity (track or artist).",
	},
	{
		category: apperr.EntityExists,
		status:   http.StatusConflict,
		result:   "failure",
		kind:     "entity_exists",
		desc:     "This entity already exists in the database. Consider merging instead.",
		value: func(err error) any {
			var e *apperr.EntityExistsError
			errors.As(err, &e)
			return e.Entity
		},
	},
	{
		category: apperr.BackendNotReady,
		status:   http.StatusServiceUnavailable,
		result:   "error",
		kind:     "server_not_ready",
		desc:     "The database is being upgraded. Please try again later.",
		value: func(err error) any {
			var e *apperr.NotReadyError
			errors.As(err, &e)
			return e.Reason
		},
	},
	{
		category: apperr.MalformedInput,
		status:   http.StatusBadRequest,
		result:   "failure",
		kind:     "malformed_input",
		desc:     "A parameter could not be parsed.",
		value: func(err error) any {
			var e *apperr.MalformedInputError
			errors.As(err, &e)
			if e.Param == "" || e.Kind != "" {
				return nil
			}
			return map[string]string{"param": e.Param, "value": e.Value}
		},
	},
	{
		category: apperr.Unknown,
		status:   http.StatusInternalServerError,
		result:   "failure",
		kind:     "unknown_error",
		desc:     "The server has encountered an exception.",
		value: func(err error) any {
			return err.Error()
		},
	},
}

type httpStatuser interface {
	HTTPStatus() int
}

// Dispatch maps err to a status code and error envelope.
func Dispatch(err error) (int, Envelope) {
	cat := apperr.Classify(err)
	arm := errorArms[len(errorArms)-1]
	for _, a := range errorArms {
		if a.category == cat {
			arm = a
			break
		}
	}

	status := arm.status
	body := ErrorBody{Type: arm.kind, Desc: arm.desc}
	if arm.value != nil {
		body.Value = arm.value(err)
	}

	switch cat {
	case apperr.MalformedInput:
		var e *apperr.MalformedInputError
		if errors.As(err, &e) && e.Kind != "" {
			body.Type = e.Kind
			if e.Kind == "malformed_b64" {
				body.Desc = "The provided base 64 string is not valid."
			}
		}
	case apperr.Unknown:
		var hs httpStatuser
		if errors.As(err, &hs) {
			status = hs.HTTPStatus()
		}
	}

	return status, Envelope{"status": arm.result, "error": body}
}

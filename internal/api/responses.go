package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteJSON writes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// QueryBool returns the parsed value of a boolean parameter and whether it
// was present and valid.
func QueryBool(r *http.Request, name string) (bool, bool) {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return false, false
	}
	return b, true
}

// QueryString returns a non-empty string parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	return v, v != ""
}

// QueryInt parses an integer parameter within [min, max]. def is returned
// when the parameter is absent.
func QueryInt(r *http.Request, name string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, &paramError{name: name, value: v, min: min, max: max}
	}
	return n, nil
}

type paramError struct {
	name, value string
	min, max    int
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value) + ": must be an integer in " +
		strconv.Itoa(e.min) + ".." + strconv.Itoa(e.max)
}

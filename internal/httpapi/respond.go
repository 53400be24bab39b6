package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/piptrade/botd/internal/apperr"
)

// errorBody is the uniform non-200 response shape.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

// writeErr maps a classified error to its status and JSON body.
func writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)
	if status >= 500 {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: string(kind), Detail: apperr.Detail(err)})
}

// decodeBody parses a JSON request body into dst, classifying failures as
// BadRequest.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.New(apperr.BadRequest, "missing request body")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if apperr.Is(err, apperr.BadRequest) {
			return err
		}
		return apperr.Wrap(apperr.BadRequest, err, "malformed JSON body")
	}
	return nil
}

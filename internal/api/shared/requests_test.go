package shared

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Title string `json:"title" validate:"required,max=10"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"title":"ok"}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "malformed", body: `{"title":`, wantErr: true},
		{name: "unknown field", body: `{"title":"ok","owner":"x"}`, wantErr: true},
		{name: "trailing object", body: `{"title":"a"}{"title":"b"}`, wantErr: true},
		{name: "too large", body: `{"title":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var v sampleRequest

			err := DecodeJSON(httptest.NewRecorder(), req, &v)

			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", v.Title)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(&sampleRequest{Title: "short"}))

	err := ValidateRequest(&sampleRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = ValidateRequest(&sampleRequest{Title: "much too long"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "max")
}

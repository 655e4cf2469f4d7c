package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"auth", ErrAuth("token rejected"), ErrorKindAuth},
		{"counter not found", ErrCounterNotFound("counter 42 not found"), ErrorKindCounterNotFound},
		{"unavailable data", ErrUnavailableData("no data for range"), ErrorKindUnavailableData},
		{"timeout", ErrTimeout("exceeded 30m"), ErrorKindTimeout},
		{"job failed", ErrJobFailed("remote reported failure"), ErrorKindJobFailed},
		{"part download", ErrPartDownload(3, "part 3 failed"), ErrorKindPartDownload},
		{"part format", ErrPartFormat(0, "header mismatch"), ErrorKindPartFormat},
		{"no fields", ErrNoFieldsAvailable("nothing exportable"), ErrorKindNoFieldsAvailable},
		{"schema", ErrSchema("unknown type"), ErrorKindSchema},
		{"load", ErrLoad("syntax error", "insert rejected"), ErrorKindLoad},
		{"wrapped load", fmt.Errorf("chunk 2: %w", ErrLoad("", "insert rejected")), ErrorKindLoad},
		{"wrapped timeout", fmt.Errorf("visits: %w", ErrTimeout("ceiling hit")), ErrorKindTimeout},
		{"plain error", errors.New("something else"), ErrorKindUnknown},
		{"nil", nil, ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestConstructorsFormatMessages(t *testing.T) {
	t.Parallel()

	err := ErrPartDownload(7, "download part %d after %d attempts", 7, 4)
	assert.Equal(t, 7, err.Part)
	assert.Equal(t, "download part 7 after 4 attempts", err.Error())

	authErr := ErrAuth("credential rejected for counter %d", 123)
	assert.Equal(t, "credential rejected for counter 123", authErr.Error())
}

func TestLoadErrorDetail(t *testing.T) {
	t.Parallel()

	withDetail := ErrLoad("Code: 62. DB::Exception: Syntax error", "statement rejected")
	assert.Equal(t, "statement rejected: Code: 62. DB::Exception: Syntax error", withDetail.Error())

	withoutDetail := ErrLoad("", "statement rejected")
	assert.Equal(t, "statement rejected", withoutDetail.Error())
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("run hits: %w", ErrPartFormat(2, "header mismatch in part 2"))

	var formatErr *PartFormatError
	require.True(t, errors.As(wrapped, &formatErr))
	assert.Equal(t, 2, formatErr.Part)
}

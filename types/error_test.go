package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrBackendIO, "insert playerv1").WithCause(root)

	if GetErrorCode(err) != ErrBackendIO {
		t.Fatalf("expected code %s, got %s", ErrBackendIO, GetErrorCode(err))
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got != "[BACKEND_IO] insert playerv1: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_IsCodeWalksNestedChain(t *testing.T) {
	t.Parallel()

	inner := FieldConversion("age", errors.New("-1 out of range for uint32"))
	outer := fmt.Errorf("cursor: %w", RowDecode("playerv2", inner))

	if GetErrorCode(outer) != ErrRowDecode {
		t.Fatalf("expected outermost code %s, got %s", ErrRowDecode, GetErrorCode(outer))
	}
	if !IsCode(outer, ErrFieldConversion) {
		t.Fatalf("expected nested FIELD_CONVERSION to be found")
	}
	if IsCode(outer, ErrMissingField) {
		t.Fatalf("did not expect MISSING_FIELD")
	}
	if IsCode(nil, ErrRowDecode) {
		t.Fatalf("nil error carries no code")
	}
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		code ErrorCode
		msg  string
	}{
		{"missing field", MissingField("name"), ErrMissingField, "[MISSING_FIELD] missing field name"},
		{"missing key", MissingPrimaryKey("update"), ErrMissingPrimaryKey, "[MISSING_PRIMARY_KEY] update: missing primary key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Error() != tt.msg {
				t.Fatalf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

// Package errors_test provides unit tests for the AppError type, factory
// functions, and error-chain helpers defined in pkg/errors/errors.go.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"document not found", errors.ErrCodeDocumentNotFound, "document 42 not found"},
		{"empty input", errors.ErrCodeEmptyInput, "nothing to tokenize"},
		{"span overlap", errors.ErrCodeSpanOverlap, "span [2,5) overlaps [4,6)"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail, "Detail should be empty for bare New()")
			assert.Nil(t, ae.Cause, "Cause should be nil for bare New()")
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()

	ae := errors.Newf(errors.ErrCodeSchemaRelationIndex, "record %d relation %d: head=%d out of range", 3, 1, 9)
	require.NotNil(t, ae)
	assert.Equal(t, "record 3 relation 1: head=9 out of range", ae.Message)
}

func TestError_FormatsCodeMessageAndDetail(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeSpanOutOfBounds, "span exceeds token count")
	assert.Equal(t, "[ANN_003] span exceeds token count", ae.Error())

	withDetail := ae.WithDetail("span=[4,9) tokens=6")
	assert.Equal(t, "[ANN_003] span exceeds token count: span=[4,9) tokens=6", withDetail.Error())
	assert.Empty(t, ae.Detail, "WithDetail must not mutate the receiver")
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should vanish"))
}

func TestWrap_PreservesCauseChain(t *testing.T) {
	t.Parallel()

	root := stderrors.New("disk full")
	mid := errors.Wrap(root, errors.ErrCodeExportFailed, "writing train split")
	top := errors.Wrap(mid, errors.ErrCodeInternal, "export pipeline failed")

	assert.True(t, stderrors.Is(top, root), "errors.Is must reach the root cause")

	var ae *errors.AppError
	require.True(t, stderrors.As(top, &ae))
	assert.Equal(t, errors.ErrCodeInternal, ae.Code)
}

func TestWrap_UnknownCodeAdoptsWrappedCode(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeDocumentNotFound, "document gone")
	outer := errors.Wrap(inner, errors.CodeUnknown, "loading for export")

	assert.Equal(t, errors.ErrCodeDocumentNotFound, outer.Code)
}

func TestWrapf_FormatsAndPreservesCause(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrapf(nil, errors.CodeInternal, "gone %d", 1))

	root := stderrors.New("boom")
	wrapped := errors.Wrapf(root, errors.ErrCodeInternal, "attempt %d failed", 3)
	assert.Equal(t, "attempt 3 failed", wrapped.Message)
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestIsCode_WalksTheChain(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeSpanOverlap, "overlap")
	outer := fmt.Errorf("merge commit: %w", inner)

	assert.True(t, errors.IsCode(outer, errors.ErrCodeSpanOverlap))
	assert.False(t, errors.IsCode(outer, errors.ErrCodeDuplicateEntity))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeSpanOverlap))
}

func TestIsNotFound_CoversDomainVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"generic", errors.NotFound("gone"), true},
		{"document", errors.New(errors.ErrCodeDocumentNotFound, "gone"), true},
		{"entity", errors.New(errors.ErrCodeEntityNotFound, "gone"), true},
		{"relation", errors.New(errors.ErrCodeRelationNotFound, "gone"), true},
		{"job", errors.New(errors.ErrCodeJobNotFound, "gone"), true},
		{"wrapped", fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeEntityNotFound, "gone")), true},
		{"other", errors.New(errors.ErrCodeSpanOverlap, "overlap"), false},
		{"plain", stderrors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, errors.IsNotFound(tc.err))
		})
	}
}

func TestClassHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsInputError(errors.New(errors.ErrCodeEmptyInput, "empty")))
	assert.True(t, errors.IsInputError(errors.InvalidParam("bad flag")))
	assert.False(t, errors.IsInputError(errors.New(errors.ErrCodeSpanOverlap, "overlap")))

	assert.True(t, errors.IsValidationError(errors.New(errors.ErrCodeUnknownEntityType, "PERSONN")))
	assert.True(t, errors.IsValidationError(errors.Validation("generic rule")))
	assert.False(t, errors.IsValidationError(errors.New(errors.ErrCodeEmptyInput, "empty")))

	assert.True(t, errors.IsSchemaError(errors.New(errors.ErrCodeSchemaRelationIndex, "head out of range")))
	assert.False(t, errors.IsSchemaError(errors.New(errors.ErrCodeEmptyInput, "empty")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeJobStartFailed, errors.GetCode(errors.New(errors.ErrCodeJobStartFailed, "spawn failed")))
	assert.Equal(t, errors.ErrCodeJobStartFailed,
		errors.GetCode(fmt.Errorf("wrapped: %w", errors.New(errors.ErrCodeJobStartFailed, "spawn failed"))))
}

func TestWithCause_AttachesWithoutMutation(t *testing.T) {
	t.Parallel()

	base := errors.New(errors.ErrCodeLexiconReadFailed, "read failed")
	cause := stderrors.New("EOF")
	attached := base.WithCause(cause)

	assert.Nil(t, base.Cause)
	require.NotNil(t, attached)
	assert.True(t, stderrors.Is(attached, cause))
}

func TestNilReceiverBuildersReturnNil(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

func TestStack_ContainsCallerFrame(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeInternal, "test")
	require.NotNil(t, ae)
	assert.True(t, strings.Contains(ae.Stack, "errors_test"), "stack should name the calling test file")
}

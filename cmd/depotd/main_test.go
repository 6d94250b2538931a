package main

import (
	"errors"
	"testing"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

func TestExitCodeForMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.InvalidRequestf("bad"), 2},
		{apperrors.InvalidIdentifierf("bad id"), 2},
		{apperrors.NotFoundf("missing"), 3},
		{apperrors.AuthRequired("acme/widget"), 4},
		{apperrors.InsufficientDiskSpace(10, 5), 5},
		{apperrors.Cancelled("download"), 6},
		{errors.New("unrecognized"), 1},
	}
	for _, tc := range cases {
		if got := exitCodeFor(tc.err); got != tc.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

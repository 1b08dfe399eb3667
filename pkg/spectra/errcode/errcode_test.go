package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCMS_Values(t *testing.T) {
	// Values are reported by the firmware and must not drift.
	assert.Equal(t, 40, int(ErrControllerAlreadyStarted))
	assert.Equal(t, 44, int(ErrOperatingNotAllowed))
	assert.Equal(t, 80, int(ErrParameterOutOfRange))
	assert.Equal(t, 84, int(ErrNotSupported))
	assert.Equal(t, 16, int(ErrDataPathTooLong))
}

func TestCMS_ErrorsIs(t *testing.T) {
	err := fmt.Errorf("%w: state is Vented", ErrOperatingNotAllowed)
	assert.True(t, errors.Is(err, ErrOperatingNotAllowed))
	assert.False(t, errors.Is(err, ErrStandbyNotAllowed))
	assert.Equal(t, "operating not allowed: state is Vented", err.Error())
}

func TestCMS_UnknownMessage(t *testing.T) {
	assert.Equal(t, "cms error 999", CMS(999).Error())
	assert.Equal(t, "data error 99", Data(99).Error())
}

func TestCodeOf_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		domain Domain
		code   int
	}{
		{"nil", nil, DomainNone, 0},
		{"foreign", errors.New("boom"), DomainNone, 0},
		{"cms", fmt.Errorf("op: %w", ErrAlreadyAcquiring), DomainCMS, 20},
		{"data", fmt.Errorf("%w: 7", ErrDataIndexOutOfRange), DomainData, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain, code := CodeOf(tt.err)
			assert.Equal(t, tt.domain, domain)
			assert.Equal(t, tt.code, code)

			restored := FromCode(domain, code)
			if tt.domain == DomainNone {
				assert.Nil(t, restored)
				return
			}
			assert.True(t, errors.Is(tt.err, restored))
		})
	}
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinorUnitsFromMoney(t *testing.T) {
	tests := []struct {
		in   string
		want MinorUnits
	}{
		{"123.45", 12345},
		{"0.005", 1},
		{"-2.50", -250},
		{"10", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnitsFromMoney(MustMoney(tt.in)))
		})
	}
}

func TestMinorUnits_Mul(t *testing.T) {
	price := MinorUnits(1250)

	assert.True(t, price.Mul(-3).Equal(MustMoney("-37.5")))
	assert.True(t, price.Mul(0).IsZero())
	assert.Equal(t, "12.5", price.ToMoney().String())
}

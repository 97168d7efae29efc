package domain_test

import (
	"errors"
	"testing"

	"github.com/tourbase/experience-bookings/internal/domain"
)

func TestNewSlotCapacity(t *testing.T) {
	t.Run("breakdown within total", func(t *testing.T) {
		c, err := domain.NewSlotCapacity(10, map[string]int{"adult": 6, "child": 4})
		if err != nil {
			t.Fatalf("NewSlotCapacity: %v", err)
		}
		if c.Total() != 10 {
			t.Errorf("total = %d, want 10", c.Total())
		}
		if c.ForType("adult") != 6 {
			t.Errorf("adult = %d, want 6", c.ForType("adult"))
		}
		if c.ForType("senior") != 0 {
			t.Errorf("senior = %d, want 0", c.ForType("senior"))
		}
	})

	t.Run("breakdown exceeds total", func(t *testing.T) {
		_, err := domain.NewSlotCapacity(5, map[string]int{"adult": 4, "child": 4})
		if !errors.Is(err, domain.ErrInvalidCapacity) {
			t.Errorf("err = %v, want ErrInvalidCapacity", err)
		}
	})

	t.Run("zero total leaves breakdown uncapped", func(t *testing.T) {
		c, err := domain.NewSlotCapacity(0, map[string]int{"adult": 100})
		if err != nil {
			t.Fatalf("NewSlotCapacity: %v", err)
		}
		if c.PerTypeSum() != 100 {
			t.Errorf("per-type sum = %d, want 100", c.PerTypeSum())
		}
	})
}

func TestSlotCapacityImmutable(t *testing.T) {
	src := map[string]int{"adult": 6}
	c, err := domain.NewSlotCapacity(10, src)
	if err != nil {
		t.Fatal(err)
	}

	src["adult"] = 999
	if c.ForType("adult") != 6 {
		t.Error("capacity shares memory with caller map")
	}

	c.PerType()["adult"] = 999
	if c.ForType("adult") != 6 {
		t.Error("PerType exposes internal map")
	}
}

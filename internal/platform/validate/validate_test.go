package validate

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gte=1,lte=20"`
	Mode  string `yaml:"mode" validate:"oneof=postgres sqlite"`
}

func TestStructReportsFieldNames(t *testing.T) {
	err := Struct(&sample{Count: 30, Mode: "mysql"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if verr.Fields["name"] != "is required" {
		t.Fatalf("name=%q", verr.Fields["name"])
	}
	if verr.Fields["count"] != "must be less than or equal to 20" {
		t.Fatalf("count=%q", verr.Fields["count"])
	}
	if verr.Fields["mode"] != "must be one of [postgres, sqlite]" {
		t.Fatalf("mode=%q", verr.Fields["mode"])
	}
}

func TestStructAcceptsValid(t *testing.T) {
	if err := Struct(&sample{Name: "x", Count: 3, Mode: "sqlite"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

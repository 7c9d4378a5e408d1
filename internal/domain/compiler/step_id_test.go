package compiler

import (
	"errors"
	"testing"
)

func TestNewStepID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"swap:disable:all", nil},
		{"kernel:sysctl:net.bridge.bridge-nf-call-iptables", nil},
		{"hosts:entry:node-1.example.com", nil},
		{"apt:package:containerd", nil},
		{"  kubeadm:init:cluster  ", nil},
		{"", ErrEmptyStepID},
		{"   ", ErrEmptyStepID},
		{":leading", ErrInvalidStepID},
		{"trailing:", ErrInvalidStepID},
		{"has space:x", ErrInvalidStepID},
		{"a::b", ErrInvalidStepID},
		{".hidden:x", ErrInvalidStepID},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := NewStepID(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewStepID(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestStepID_Segments(t *testing.T) {
	id := MustNewStepID("kernel:sysctl:net.ipv4.ip_forward")

	if id.Provider() != "kernel" {
		t.Errorf("Provider() = %q", id.Provider())
	}
	if id.Action() != "sysctl" {
		t.Errorf("Action() = %q", id.Action())
	}
	if id.Resource() != "net.ipv4.ip_forward" {
		t.Errorf("Resource() = %q", id.Resource())
	}

	short := MustNewStepID("single")
	if short.Action() != "" || short.Resource() != "" {
		t.Error("short IDs should have empty action and resource")
	}
}

func TestStepID_EqualsAndZero(t *testing.T) {
	a := MustNewStepID("swap:disable:all")
	b := MustNewStepID("swap:disable:all")

	if !a.Equals(b) {
		t.Error("Equals() should be true for identical IDs")
	}
	if a.IsZero() || !(StepID{}).IsZero() {
		t.Error("IsZero() mismatch")
	}
}

func TestMustNewStepID_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNewStepID should panic on invalid input")
		}
	}()
	_ = MustNewStepID("bad id")
}

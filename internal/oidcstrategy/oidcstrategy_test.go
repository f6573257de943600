package oidcstrategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRejectsMissingIssuer(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "abc"}, nil)
	assert.Error(t, err)
}

func TestNewRejectsMissingClientID(t *testing.T) {
	_, err := New(context.Background(), Config{IssuerURL: "https://idp.example.com"}, nil)
	assert.Error(t, err)
}

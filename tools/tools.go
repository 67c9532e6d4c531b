//go:build tools
// +build tools

// Pins oapi-codegen into go.mod. Third-party clients of the divination API
// are generated from api/openapi.yaml with:
//
//	go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen -config api/oapi-codegen.yaml api/openapi.yaml

package tools

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
)

// Package serializers provides Serializers for common record types
package serializers

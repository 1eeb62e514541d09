// Copyright 2025 Certen Protocol

package kvstore

import "github.com/certenio/manynet/pkg/protoerr"

// AttributeID matches the original many-kvstore's attribute id of 3.
const AttributeID = 3

const (
	codePermissionDenied = iota + 1
	codeKeyDisabled
	codeAnonAltOwnerDenied
	codeSubresourceAltOwnerUnsupported
	codeKeyNotFound
)

func errPermissionDenied() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codePermissionDenied),
		"you do not have the authorization to modify this key", nil)
}

func errKeyDisabled() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeKeyDisabled),
		"the key was disabled by its owner", nil)
}

func errAnonAltOwnerDenied() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeAnonAltOwnerDenied),
		"anonymous alternative owner denied", nil)
}

func errSubresourceAltOwnerUnsupported() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeSubresourceAltOwnerUnsupported),
		"subresource alternative owner unsupported", nil)
}

func errKeyNotFound() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeKeyNotFound),
		"key not found", nil)
}

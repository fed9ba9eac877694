//go:build !linux

package symbol

const defaultKind = KindQuery

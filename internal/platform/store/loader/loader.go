// Package loader registers store drivers via blank imports.
//
// Usage in main.go:
//
//	import _ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/loader"
package loader

import (
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/bolt"
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/sqlstore"
)

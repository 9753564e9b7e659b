//go:build !linux && !darwin

package lister

import (
	"io/fs"

	"github.com/platinummonkey/llx/pkg/protocol"
)

func fillPlatform(md *protocol.EntryMetadata, info fs.FileInfo) {}

package lister

import (
	"io/fs"
	"syscall"

	"github.com/platinummonkey/llx/pkg/protocol"
)

func fillPlatform(md *protocol.EntryMetadata, info fs.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	md.Accessed = unixSeconds(int64(st.Atim.Sec))
	// Linux has no birth time in stat(2); the inode change time stands in.
	md.Created = unixSeconds(int64(st.Ctim.Sec))
	md.UID = st.Uid
	md.GID = st.Gid
}

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
	md.Accessed = unixSeconds(int64(st.Atimespec.Sec))
	md.Created = unixSeconds(int64(st.Birthtimespec.Sec))
	md.UID = st.Uid
	md.GID = st.Gid
}

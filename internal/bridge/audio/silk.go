package audio

import (
	"bytes"
	"io"
	"os"
)

var silkMagic = []byte("#!SILK_V3")

// IsSilk 判断数据是否为 SILK v3 编码（部分客户端会在头部多写一个 0x02）
func IsSilk(header []byte) bool {
	if bytes.HasPrefix(header, silkMagic) {
		return true
	}
	return len(header) > 0 && header[0] == 0x02 && bytes.HasPrefix(header[1:], silkMagic)
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, len(silkMagic)+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

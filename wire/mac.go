package wire

const hexDigits = "0123456789abcdef"

// FormatMAC converts a raw hardware address into lower-case colon-hex form,
// e.g. {0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF} -> "aa:bb:cc:dd:ee:ff". It is a
// pure, total function: any byte length (including zero) formats without
// error.
func FormatMAC(mac []byte) string {
	if len(mac) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(mac)*3-1)
	for i, b := range mac {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(buf)
}

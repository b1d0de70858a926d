package protocol

import "encoding/base64"

// EncodePCM encodes a raw PCM frame for a base64_json transport.
func EncodePCM(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

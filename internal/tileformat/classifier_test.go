package tileformat

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want DataFormat
	}{
		{"empty", []byte{}, Unknown},
		{"too short for any signature", []byte{0x01}, Unknown},
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, MvtGzip},
		{"zlib", []byte{0x78, 0x9C, 0x01, 0x02}, MvtZlib},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, Png},
		{"gif", []byte("GIF89a..."), Gif},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, Jpeg},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), Webp},
		{"json object", []byte(`{"a":1}`), Json},
		{"bare mvt protobuf has no magic number, classifies unknown", []byte{0x1A, 0x02, 0x08, 0x01}, Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.data); got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.data, got, tc.want)
			}
		})
	}
}

// TestClassifyTotal checks the classifier never panics regardless of
// input length, since Classify is documented as total.
func TestClassifyTotal(t *testing.T) {
	for n := 0; n < 8; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = 0xFF
		}
		_ = Classify(data)
	}
}

func TestContentTypeAndEncoding(t *testing.T) {
	cases := []struct {
		f               DataFormat
		contentType     string
		contentEncoding string
	}{
		{Png, "image/png", ""},
		{Jpeg, "image/jpeg", ""},
		{Webp, "image/webp", ""},
		{Gif, "image/gif", ""},
		{Json, "application/json", ""},
		{Mvt, "application/x-protobuf", ""},
		{MvtGzip, "application/x-protobuf", "gzip"},
		{MvtZlib, "application/x-protobuf", "deflate"},
		{Unknown, "", ""},
	}
	for _, tc := range cases {
		if got := tc.f.ContentType(); got != tc.contentType {
			t.Errorf("%v.ContentType() = %q, want %q", tc.f, got, tc.contentType)
		}
		if got := tc.f.ContentEncoding(); got != tc.contentEncoding {
			t.Errorf("%v.ContentEncoding() = %q, want %q", tc.f, got, tc.contentEncoding)
		}
	}
}

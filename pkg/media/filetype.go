package media

import (
	"mime"
	"path"
	"strings"
)

const (
	CategoryImage    = "image"
	CategoryDocument = "document"
	CategoryAudio    = "audio"
	CategoryVideo    = "video"
	CategoryPoll     = "poll"
	CategoryUnknown  = "unknown"

	UnknownMIME = "unknown/unknown"

	// OctetStreamFallback is the content type some storage servers report for any object.
	OctetStreamFallback = "binary/octet-stream"
)

// FileType is a MIME type with its media category.
type FileType struct {
	Category string `json:"file_type"`
	MIME     string `json:"mime"`
}

type categoryEntry struct {
	category string
	mimes    []string
}

// categories is matched in order; the first list containing the MIME wins.
var categories = []categoryEntry{
	{category: CategoryImage, mimes: []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/bmp",
		"image/webp",
		"image/tiff",
		"image/svg+xml",
		"image/x-icon",
		"image/heic",
		"image/heif",
		"image/x-raw",
	}},
	{category: CategoryDocument, mimes: []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain",
		"text/csv",
		"text/html",
		"application/rtf",
		"application/x-tex",
		"application/vnd.oasis.opendocument.text",
		"application/vnd.oasis.opendocument.spreadsheet",
		"application/epub+zip",
		"application/x-mobipocket-ebook",
		"application/x-fictionbook+xml",
		"application/x-abiword",
		"application/vnd.apple.pages",
		"application/vnd.google-apps.document",
	}},
	{category: CategoryAudio, mimes: []string{
		"audio/mpeg",
		"audio/wav",
		"audio/ogg",
		"audio/flac",
		"audio/aac",
		"audio/mp3",
		"audio/webm",
		"audio/amr",
		"audio/midi",
		"audio/x-m4a",
		"audio/x-realaudio",
		"audio/x-aiff",
		"audio/x-wav",
		"audio/x-matroska",
	}},
	{category: CategoryVideo, mimes: []string{
		"video/mp4",
		"video/mpeg",
		"video/ogg",
		"video/webm",
		"video/quicktime",
		"video/x-msvideo",
		"video/x-matroska",
		"video/x-flv",
		"video/x-ms-wmv",
		"video/3gpp",
		"video/3gpp2",
		"video/h264",
		"video/h265",
		"video/x-f4v",
		"video/avi",
	}},
	{category: CategoryPoll, mimes: []string{
		"application/poll",
		"application/vnd.jivas.poll",
		"poll/message",
		"application/x-poll-data",
		"application/jivas-poll+json",
		"jivas/poll",
	}},
}

// extensionTypes keeps extension lookups stable across hosts with different mime.types files.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".rtf":  "application/rtf",
	".tex":  "application/x-tex",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".epub": "application/epub+zip",
	".mp3":  "audio/mpeg",
	".wav":  "audio/x-wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".amr":  "audio/amr",
	".mid":  "audio/midi",
	".midi": "audio/midi",
	".m4a":  "audio/x-m4a",
	".aif":  "audio/x-aiff",
	".aiff": "audio/x-aiff",
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".3gp":  "video/3gpp",
	".3g2":  "video/3gpp2",
}

// Classify returns the category of an already detected MIME type. An empty or
// binary/octet-stream value is resolved from the extension of name instead.
func Classify(mimeType string, name string) FileType {
	detected := BaseMIME(mimeType)
	if detected == "" || detected == OctetStreamFallback {
		detected = TypeByExtension(path.Ext(name))
	}

	for _, entry := range categories {
		for _, candidate := range entry.mimes {
			if candidate == detected {
				return FileType{Category: entry.category, MIME: detected}
			}
		}
	}

	return FileType{Category: CategoryUnknown, MIME: detected}
}

// TypeByExtension maps a file extension to a MIME type, defaulting to unknown/unknown.
func TypeByExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return UnknownMIME
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if known, ok := extensionTypes[ext]; ok {
		return known
	}
	if guessed := BaseMIME(mime.TypeByExtension(ext)); guessed != "" {
		return guessed
	}

	return UnknownMIME
}

// BaseMIME drops MIME parameters such as charset and lower-cases the type.
func BaseMIME(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}

	return strings.ToLower(strings.TrimSpace(value))
}

package core

// UploadResponse is the JSON body of a successful multipart upload.
type UploadResponse struct {
	FileURL string `json:"fileUrl"`
}

// ImageUploadRequest is the JSON body accepted by the image endpoint. Image
// is a data URL ("data:image/png;base64,...") or bare base64.
type ImageUploadRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename"`
}

// ImageUploadResponse is the JSON body of a successful image upload.
type ImageUploadResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

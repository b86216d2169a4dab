// Package codec converts raw image bytes to and from the base64 text form
// carried by the filtering protocol, and checks that bytes decode as an image.
package codec

import (
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"filter-explorer/internal/models"

	"gocv.io/x/gocv"
)

// Info describes a decoded image.
type Info struct {
	Width    int
	Height   int
	Channels int
}

// Codec is stateless; the zero value is ready to use.
type Codec struct{}

// New returns a Codec.
func New() Codec {
	return Codec{}
}

// Encode returns the standard base64 encoding of data.
func (Codec) Encode(data []byte) string {
	return Encode(data)
}

// Decode parses the protocol text form back into bytes.
func (Codec) Decode(text string) ([]byte, error) {
	return Decode(text)
}

// Validate decodes data with OpenCV the same way the filtering service does.
func (Codec) Validate(data []byte) (Info, error) {
	return Validate(data)
}

func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode accepts plain base64 or a data URL ("data:image/png;base64,...").
func Decode(text string) ([]byte, error) {
	payload := strings.TrimSpace(text)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, decodeFailure(fmt.Errorf("malformed data URL"))
		}
		payload = payload[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, decodeFailure(fmt.Errorf("invalid base64 payload: %w", err))
	}
	return data, nil
}

func Validate(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, decodeFailure(fmt.Errorf("image data is empty"))
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return Info{}, decodeFailure(fmt.Errorf("failed to decode image with OpenCV: %w", err))
	}
	defer mat.Close()

	if err := validateMat(&mat); err != nil {
		return Info{}, decodeFailure(err)
	}

	return Info{Width: mat.Cols(), Height: mat.Rows(), Channels: mat.Channels()}, nil
}

// ToImage converts encoded bytes into an image.Image for display.
func ToImage(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, decodeFailure(fmt.Errorf("failed to decode image with OpenCV: %w", err))
	}
	defer mat.Close()

	if err := validateMat(&mat); err != nil {
		return nil, decodeFailure(err)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, decodeFailure(fmt.Errorf("Mat to image conversion failed: %w", err))
	}
	return img, nil
}

func validateMat(mat *gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("decoded Mat is empty")
	}
	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("decoded Mat has invalid dimensions %dx%d", mat.Cols(), mat.Rows())
	}
	return nil
}

func decodeFailure(err error) error {
	return &models.FilterError{Kind: models.FailureDecode, Err: err}
}

package components

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const (
	ImageAreaWidth  = 480
	ImageAreaHeight = 360
)

// ImageDisplay shows the original and the processed image side by side.
type ImageDisplay struct {
	container      *fyne.Container
	originalImage  *canvas.Image
	processedImage *canvas.Image
	originalHint   *widget.Label
	processedHint  *widget.Label
	placeholder    image.Image
}

func NewImageDisplay() *ImageDisplay {
	display := &ImageDisplay{}
	display.createComponents()
	display.setupLayout()
	return display
}

func (id *ImageDisplay) createComponents() {
	id.placeholder = createPlaceholderImage()

	id.originalImage = newPane(id.placeholder)
	id.processedImage = newPane(id.placeholder)

	id.originalHint = widget.NewLabel("Waiting for an image...")
	id.originalHint.Alignment = fyne.TextAlignCenter
	id.processedHint = widget.NewLabel("Filter result")
	id.processedHint.Alignment = fyne.TextAlignCenter
}

func newPane(img image.Image) *canvas.Image {
	pane := canvas.NewImageFromImage(img)
	pane.FillMode = canvas.ImageFillContain
	pane.ScaleMode = canvas.ImageScaleSmooth
	pane.SetMinSize(fyne.NewSize(ImageAreaWidth, ImageAreaHeight))
	return pane
}

// createPlaceholderImage draws a light frame shown while a pane is empty.
func createPlaceholderImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, ImageAreaWidth, ImageAreaHeight))

	lightGray := color.RGBA{R: 240, G: 240, B: 240, A: 255}
	borderColor := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	for y := 0; y < ImageAreaHeight; y++ {
		for x := 0; x < ImageAreaWidth; x++ {
			if x == 0 || y == 0 || x == ImageAreaWidth-1 || y == ImageAreaHeight-1 {
				img.Set(x, y, borderColor)
			} else {
				img.Set(x, y, lightGray)
			}
		}
	}
	return img
}

func (id *ImageDisplay) setupLayout() {
	original := container.NewBorder(
		widget.NewRichTextFromMarkdown("**Original**"),
		nil, nil, nil,
		container.NewStack(id.originalImage, container.NewCenter(id.originalHint)),
	)

	processed := container.NewBorder(
		widget.NewRichTextFromMarkdown("**Processed**"),
		nil, nil, nil,
		container.NewStack(id.processedImage, container.NewCenter(id.processedHint)),
	)

	split := container.NewHSplit(original, processed)
	split.SetOffset(0.5)
	id.container = container.NewStack(split)
}

// SetImages replaces both panes. A nil image restores the placeholder.
// Must run on the UI thread.
func (id *ImageDisplay) SetImages(original, processed image.Image) {
	setPane(id.originalImage, id.originalHint, original, id.placeholder)
	setPane(id.processedImage, id.processedHint, processed, id.placeholder)
}

func setPane(pane *canvas.Image, hint *widget.Label, img, placeholder image.Image) {
	if img != nil {
		pane.Image = img
		hint.Hide()
	} else {
		pane.Image = placeholder
		hint.Show()
	}
	pane.Refresh()
}

func (id *ImageDisplay) GetContainer() *fyne.Container {
	return id.container
}

// Package plots draws the training curves, per-class accuracy and prediction grids.
package plots

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"strings"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/stats"
	"github.com/fogleman/gg"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

// Size of the history figure
var (
	HistoryWidth  = 12 * vg.Inch
	HistoryHeight = 4 * vg.Inch
)

// History writes a PNG file with side by side plots of the training and validation accuracy and loss.
func History(h nnet.History, file string) error {
	acc, err := historyPlot(h, "accuracy")
	if err != nil {
		return err
	}
	loss, err := historyPlot(h, "loss")
	if err != nil {
		return err
	}
	plots := [][]*plot.Plot{{acc, loss}}
	c := vgimg.New(HistoryWidth, HistoryHeight)
	dc := draw.New(c)
	t := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter * 10,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, t, dc)
	for j, p := range plots[0] {
		p.Draw(canvases[0][j])
	}
	return writeFile(file, vgimg.PngCanvas{Canvas: c})
}

// HistorySVG returns a single plot of the training and validation values of metric in SVG format.
// Width and height are in points.
func HistorySVG(h nnet.History, metric string, width, height int) ([]byte, error) {
	p, err := historyPlot(h, metric)
	if err != nil {
		return nil, err
	}
	c := vgsvg.New(vg.Points(float64(width)), vg.Points(float64(height)))
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func historyPlot(h nnet.History, metric string) (*plot.Plot, error) {
	p := plot.New()
	title := strings.ToUpper(metric[:1]) + metric[1:]
	p.Title.Text = "Model " + title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = title
	p.X.Min = 1
	p.Legend.Top = metric == "accuracy"
	p.Legend.Left = false
	p.Add(plotter.NewGrid())
	if len(h) == 0 {
		return p, nil
	}
	err := plotutil.AddLines(p,
		"training", points(h, metric),
		"validation", points(h, "val_"+metric),
	)
	if err != nil {
		return nil, fmt.Errorf("error plotting %s: %w", metric, err)
	}
	return p, nil
}

func points(h nnet.History, metric string) plotter.XYs {
	pts := make(plotter.XYs, len(h))
	for i, s := range h {
		pts[i].X = float64(s.Epoch)
		pts[i].Y = s.Get(metric)
	}
	return pts
}

// ClassAccuracy writes a bar chart of the accuracy for each class as a percentage. The image format
// is chosen from the file extension.
func ClassAccuracy(acc []stats.ClassAccuracy, file string) error {
	p := plot.New()
	p.Title.Text = "Per-class accuracy"
	p.Y.Label.Text = "Accuracy %"
	p.Y.Min, p.Y.Max = 0, 100
	values := make(plotter.Values, len(acc))
	names := make([]string, len(acc))
	for i, a := range acc {
		values[i] = 100 * a.Accuracy
		names[i] = a.Class
	}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return err
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	p.Add(plotter.NewGrid(), bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	return p.Save(8*vg.Inch, 4*vg.Inch, file)
}

// Prediction grid layout in pixels
var (
	GridScale   = 3
	GridCaption = 20
	GridCell    = 160
)

var (
	correctColor = color.RGBA{0, 128, 0, 255}
	errorColor   = color.RGBA{200, 0, 0, 255}
)

// PredictionGrid draws the images from data at the given indexes in a grid with cols columns and saves it
// as a PNG file.
func PredictionGrid(file string, data *img.Data, pred []int32, index []int, cols int) error {
	im, err := PredictionImage(data, pred, index, cols)
	if err != nil {
		return err
	}
	return gg.SavePNG(file, im)
}

// PredictionImage returns a grid of the images from data at the given indexes. Each image is captioned
// with "predicted (true)" class names, in green if the prediction is correct and red otherwise.
func PredictionImage(data *img.Data, pred []int32, index []int, cols int) (image.Image, error) {
	if len(index) == 0 {
		return nil, fmt.Errorf("PredictionGrid: no images to draw")
	}
	cols = min(cols, len(index))
	rows := (len(index) + cols - 1) / cols
	size := GridScale * data.Dims[0]
	cellW := max(GridCell, size)
	cellH := size + GridCaption
	dc := gg.NewContext(cols*cellW, rows*cellH)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	for i, ix := range index {
		if ix < 0 || ix >= data.Len() || ix >= len(pred) {
			return nil, fmt.Errorf("PredictionGrid: index %d out of range", ix)
		}
		x, y := (i%cols)*cellW, (i/cols)*cellH
		src := data.Images[ix]
		im := img.Resize(src, GridScale*src.Width, GridScale*src.Height)
		dc.DrawImage(im, x+(cellW-size)/2, y)
		label, p := data.Labels[ix], pred[ix]
		if label == p {
			dc.SetColor(correctColor)
		} else {
			dc.SetColor(errorColor)
		}
		caption := fmt.Sprintf("%s (%s)", data.Class[p], data.Class[label])
		dc.DrawStringAnchored(caption, float64(x)+float64(cellW)/2, float64(y+size)+float64(GridCaption)/2, 0.5, 0.5)
	}
	return dc.Image(), nil
}

func writeFile(file string, w io.WriterTo) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if _, err = w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pngforge/go-pngstream/pngstream"
)

// Options tune an inspection run.
type Options struct {
	// IgnoreChecksum passes the checksum quirk through to the decoder.
	IgnoreChecksum bool

	// DecodePixels fully decodes every frame instead of only walking the
	// chunk structure. Slower, but verifies the compressed streams.
	DecodePixels bool

	// Logger receives decoder warnings. Nil disables logging.
	Logger *zerolog.Logger
}

// textEntry is one tEXt/zTXt/iTXt key/value pair.
type textEntry struct {
	key   string
	value string
}

// inspection is the working state of one run.
type inspection struct {
	dec *pngstream.Decoder
	src *pngstream.Buffer
	r   io.Reader

	cfg    pngstream.ImageConfig
	frames []pngstream.FrameConfig

	texts      []textEntry
	pendingKey string
	haveKey    bool
	iccLen     int
	exifLen    int

	metaScratch [4 << 10]byte
	pending     bytes.Buffer
}

const srcBufferLen = 64 << 10

// InspectFile inspects the PNG at path.
func InspectFile(path string, opts Options) (Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Report{}, err
	}
	return InspectReader(file, path, stat.Size(), opts)
}

// InspectReader inspects a PNG stream. name and size only feed the General
// section of the report.
func InspectReader(r io.Reader, name string, size int64, opts Options) (Report, error) {
	in := &inspection{
		r:   r,
		src: &pngstream.Buffer{Data: make([]byte, srcBufferLen)},
		dec: pngstream.NewDecoder(pngstream.Options{
			IgnoreChecksum: opts.IgnoreChecksum,
			Logger:         opts.Logger,
		}),
	}
	for _, fourcc := range []uint32{
		pngstream.FourCCCHRM,
		pngstream.FourCCGAMA,
		pngstream.FourCCSRGB,
		pngstream.FourCCICCP,
		pngstream.FourCCEXIF,
		pngstream.FourCCKVP,
	} {
		in.dec.SetReportMetadata(fourcc, true)
	}

	if err := in.drive(func() error {
		return in.dec.DecodeImageConfig(&in.cfg, in.src)
	}); err != nil {
		return Report{}, fmt.Errorf("inspect %s: %w", name, err)
	}

	var dst *pngstream.PixelBuffer
	var workbuf []byte
	if opts.DecodePixels {
		dst = pngstream.NewPixelBuffer(pngstream.PixFmtBGRANonPremul, in.cfg.Width, in.cfg.Height)
	}

	for {
		var fc pngstream.FrameConfig
		err := in.drive(func() error {
			return in.dec.DecodeFrameConfig(&fc, in.src)
		})
		if errors.Is(err, pngstream.ErrNoMoreFrames) {
			break
		}
		if err != nil {
			return Report{}, fmt.Errorf("inspect %s: frame %d: %w", name, len(in.frames), err)
		}
		in.frames = append(in.frames, fc)

		if opts.DecodePixels {
			if need := in.dec.WorkbufLen(); uint64(len(workbuf)) < need {
				workbuf = make([]byte, need)
			}
			blend := pngstream.BlendSrc
			if fc.BlendOp == pngstream.BlendOpOver {
				blend = pngstream.BlendSrcOver
			}
			err := in.drive(func() error {
				return in.dec.DecodeFrame(dst, in.src, blend, workbuf, nil)
			})
			if err != nil {
				return Report{}, fmt.Errorf("inspect %s: frame %d: %w", name, fc.Index, err)
			}
		}
	}

	return in.buildReport(name, size), nil
}

// drive retries fn across suspensions, refilling the source buffer and
// servicing metadata reports until fn completes or fails.
func (in *inspection) drive(fn func() error) error {
	for {
		err := fn()
		switch {
		case err == nil || errors.Is(err, pngstream.ErrNoMoreFrames):
			return err
		case errors.Is(err, pngstream.ErrShortRead):
			if err := in.refill(); err != nil {
				return err
			}
		case errors.Is(err, pngstream.ErrMetadataReported):
			if err := in.serviceOneDelivery(); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (in *inspection) refill() error {
	in.src.Compact()
	if in.src.WriteIdx == len(in.src.Data) {
		return fmt.Errorf("source buffer stalled at %d bytes", len(in.src.Data))
	}
	n, err := in.r.Read(in.src.Data[in.src.WriteIdx:])
	in.src.WriteIdx += n
	if err == io.EOF {
		in.src.Closed = true
		return nil
	}
	return err
}

// serviceOneDelivery runs TellMeMore through one complete delivery,
// accumulating raw-transform payloads across short writes.
func (in *inspection) serviceOneDelivery() error {
	dst := &pngstream.Buffer{Data: in.metaScratch[:]}
	var minfo pngstream.MoreInfo
	for {
		err := in.dec.TellMeMore(dst, &minfo, in.src)
		switch {
		case err == nil:
			in.pending.Write(dst.Data[:dst.WriteIdx])
			in.recordDelivery(minfo, in.pending.Bytes())
			in.pending.Reset()
			return nil
		case errors.Is(err, pngstream.ErrShortWrite):
			in.pending.Write(dst.Data[:dst.WriteIdx])
			dst.WriteIdx = 0
		case errors.Is(err, pngstream.ErrShortRead):
			if err := in.refill(); err != nil {
				return err
			}
		case errors.Is(err, pngstream.ErrEvenMoreInformation):
			// Raw passthrough: the payload lives in the source stream.
			// Note its length; the next call walks the cursor past it.
			in.exifLen = int(minfo.RangeMax - minfo.RangeMin)
		default:
			return err
		}
	}
}

func (in *inspection) recordDelivery(minfo pngstream.MoreInfo, payload []byte) {
	switch minfo.FourCC {
	case pngstream.FourCCICCP:
		in.iccLen = len(payload)
	case pngstream.FourCCKVPK:
		in.pendingKey = string(payload)
		in.haveKey = true
	case pngstream.FourCCKVPV:
		if in.haveKey {
			in.texts = append(in.texts, textEntry{key: in.pendingKey, value: string(payload)})
			in.haveKey = false
		}
	}
	// Parsed color deliveries also land on the image config, which the
	// report reads directly.
}

func (in *inspection) buildReport(name string, size int64) Report {
	report := Report{Ref: name}

	general := Section{Kind: SectionGeneral}
	format := "PNG"
	if in.cfg.Animated {
		format = "APNG"
	}
	general.Fields = appendFieldUnique(general.Fields, Field{Name: "Complete name", Value: name})
	general.Fields = appendFieldUnique(general.Fields, Field{Name: "Format", Value: format})
	if size > 0 {
		general.Fields = appendFieldUnique(general.Fields, Field{Name: "File size", Value: formatBytes(size)})
	}
	report.Sections = append(report.Sections, general)

	image := Section{Kind: SectionImage}
	image.Fields = appendFieldUnique(image.Fields, Field{Name: "Width", Value: formatPixels(in.cfg.Width)})
	image.Fields = appendFieldUnique(image.Fields, Field{Name: "Height", Value: formatPixels(in.cfg.Height)})
	image.Fields = appendFieldUnique(image.Fields, Field{Name: "Bit depth", Value: fmt.Sprintf("%d bits", in.cfg.BitDepth)})
	image.Fields = appendFieldUnique(image.Fields, Field{Name: "Pixel format", Value: in.cfg.PixFmt.String()})
	image.Fields = appendFieldUnique(image.Fields, Field{Name: "Color type", Value: colorTypeName(in.cfg.ColorType)})
	if in.cfg.Interlaced {
		image.Fields = appendFieldUnique(image.Fields, Field{Name: "Interlacing", Value: "Adam7"})
	}
	image.Fields = appendFieldUnique(image.Fields, Field{Name: "Compression", Value: "Deflate"})
	report.Sections = append(report.Sections, image)

	if color := in.buildColorSection(); len(color.Fields) > 0 {
		report.Sections = append(report.Sections, color)
	}

	if in.cfg.Animated {
		anim := Section{Kind: SectionAnimation}
		anim.Fields = appendFieldUnique(anim.Fields, Field{Name: "Frame count", Value: formatThousands(int64(in.cfg.FrameCount))})
		loops := "Infinite"
		if in.cfg.LoopCount > 0 {
			loops = formatThousands(int64(in.cfg.LoopCount))
		}
		anim.Fields = appendFieldUnique(anim.Fields, Field{Name: "Loop count", Value: loops})

		var total time.Duration
		for _, fc := range in.frames {
			total += fc.Duration
		}
		anim.Fields = appendFieldUnique(anim.Fields, Field{Name: "Duration", Value: formatDuration(total)})
		if total > 0 && len(in.frames) > 0 {
			rate := float64(len(in.frames)) / total.Seconds()
			anim.Fields = appendFieldUnique(anim.Fields, Field{Name: "Frame rate", Value: formatFrameRate(rate)})
		}
		report.Sections = append(report.Sections, anim)

		for _, fc := range in.frames {
			report.Sections = append(report.Sections, frameSection(fc))
		}
	}

	if len(in.texts) > 0 {
		text := Section{Kind: SectionText}
		for _, entry := range in.texts {
			text.Fields = append(text.Fields, Field{Name: entry.key, Value: entry.value})
		}
		report.Sections = append(report.Sections, text)
	}

	return report
}

func (in *inspection) buildColorSection() Section {
	color := Section{Kind: SectionColor}
	if in.cfg.HasGamma {
		color.Fields = appendFieldUnique(color.Fields, Field{Name: "Gamma", Value: formatScaled(in.cfg.Gamma)})
	}
	if in.cfg.HasChromaticity {
		c := in.cfg.Chromaticity
		color.Fields = appendFieldUnique(color.Fields, Field{
			Name:  "White point",
			Value: fmt.Sprintf("x=%s y=%s", formatScaled(c[0]), formatScaled(c[1])),
		})
		color.Fields = appendFieldUnique(color.Fields, Field{
			Name:  "Primaries",
			Value: fmt.Sprintf("R x=%s y=%s, G x=%s y=%s, B x=%s y=%s", formatScaled(c[2]), formatScaled(c[3]), formatScaled(c[4]), formatScaled(c[5]), formatScaled(c[6]), formatScaled(c[7])),
		})
	}
	if in.cfg.HasSRGB {
		color.Fields = appendFieldUnique(color.Fields, Field{Name: "sRGB intent", Value: srgbIntentName(in.cfg.SRGBIntent)})
	}
	if in.iccLen > 0 {
		color.Fields = appendFieldUnique(color.Fields, Field{Name: "ICC profile", Value: formatBytes(int64(in.iccLen))})
	}
	if in.exifLen > 0 {
		color.Fields = appendFieldUnique(color.Fields, Field{Name: "EXIF", Value: formatBytes(int64(in.exifLen))})
	}
	return color
}

func frameSection(fc pngstream.FrameConfig) Section {
	section := Section{Kind: SectionFrame}
	section.Fields = appendFieldUnique(section.Fields, Field{Name: "Index", Value: formatThousands(int64(fc.Index))})
	section.Fields = appendFieldUnique(section.Fields, Field{
		Name:  "Rectangle",
		Value: fmt.Sprintf("%dx%d at (%d,%d)", fc.Width(), fc.Height(), fc.X0, fc.Y0),
	})
	if fc.Duration > 0 {
		section.Fields = appendFieldUnique(section.Fields, Field{Name: "Duration", Value: formatDuration(fc.Duration)})
	}
	section.Fields = appendFieldUnique(section.Fields, Field{Name: "Dispose", Value: disposeName(fc.DisposeOp)})
	section.Fields = appendFieldUnique(section.Fields, Field{Name: "Blend", Value: blendName(fc.BlendOp)})
	return section
}

func colorTypeName(colorType byte) string {
	switch colorType {
	case 0:
		return "Grayscale"
	case 2:
		return "Truecolor"
	case 3:
		return "Indexed"
	case 4:
		return "Grayscale with alpha"
	case 6:
		return "Truecolor with alpha"
	}
	return fmt.Sprintf("Unknown (%d)", colorType)
}

func srgbIntentName(intent pngstream.SRGBRenderingIntent) string {
	switch intent {
	case pngstream.SRGBPerceptual:
		return "Perceptual"
	case pngstream.SRGBRelativeColorimetric:
		return "Relative colorimetric"
	case pngstream.SRGBSaturation:
		return "Saturation"
	case pngstream.SRGBAbsoluteColorimetric:
		return "Absolute colorimetric"
	}
	return "Unknown"
}

func disposeName(op pngstream.DisposeOp) string {
	switch op {
	case pngstream.DisposeNone:
		return "None"
	case pngstream.DisposeBackground:
		return "Background"
	case pngstream.DisposePrevious:
		return "Previous"
	}
	return "Unknown"
}

func blendName(op pngstream.BlendOp) string {
	switch op {
	case pngstream.BlendOpSource:
		return "Source"
	case pngstream.BlendOpOver:
		return "Over"
	}
	return "Unknown"
}

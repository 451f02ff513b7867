package document

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pdfcpu stamps every write with the clock (trailer ID, info dates) and
// gives embedded font subsets a random tag. The functions below replace
// those values with ones derived from the template and the content. Every
// replacement keeps its length so the cross-reference offsets stay valid.

var (
	subsetTag = regexp.MustCompile(`/(?:BaseFont|FontName)\s*/([A-Z]{6})\+`)
	epochDate = types.DateString(time.Unix(0, 0).UTC())
)

// templateDate returns the creation date of the template as written in
// its info dictionary, or the epoch when it has none of the right length.
func templateDate(ctx *model.Context) string {
	if ctx.Info == nil {
		return epochDate
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || info == nil {
		return epochDate
	}
	for _, key := range []string{"CreationDate", "ModDate"} {
		if s, ok := info[key].(types.StringLiteral); ok && len(s) == len(epochDate) {
			return string(s)
		}
	}
	return epochDate
}

func canonicalize(ctx *model.Context, out []byte, date string) []byte {
	if ctx.Encrypt != nil {
		return out
	}
	out = replaceDates(ctx, out, date)
	out = replaceSubsetTags(out)
	return replaceFileID(ctx, out)
}

func replaceDates(ctx *model.Context, out []byte, date string) []byte {
	if ctx.Info == nil {
		return out
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || info == nil {
		return out
	}
	fixed := []byte(types.StringLiteral(date).String())
	for _, key := range []string{"CreationDate", "ModDate"} {
		s, ok := info[key].(types.StringLiteral)
		if !ok || len(s) != len(date) {
			continue
		}
		out = bytes.ReplaceAll(out, []byte(s.String()), fixed)
	}
	return out
}

// replaceSubsetTags renames subset tags in order of first appearance
func replaceSubsetTags(out []byte) []byte {
	tags := make(map[string]string)
	for _, m := range subsetTag.FindAllSubmatchIndex(out, -1) {
		old := string(out[m[2]:m[3]])
		tag, ok := tags[old]
		if !ok {
			tag = subsetPrefix(len(tags))
			tags[old] = tag
		}
		copy(out[m[2]:m[3]], tag)
	}
	return out
}

func subsetPrefix(n int) string {
	b := []byte("SFFAAA")
	for i := len(b) - 1; i >= 3 && n > 0; i-- {
		b[i] = byte('A' + n%26)
		n /= 26
	}
	return string(b)
}

// replaceFileID sets both trailer IDs to an MD5 of the output with the
// IDs blanked.
func replaceFileID(ctx *model.Context, out []byte) []byte {
	var ids []types.HexLiteral
	for _, o := range ctx.ID {
		if h, ok := o.(types.HexLiteral); ok && len(h) > 0 {
			ids = append(ids, h)
		}
	}
	if len(ids) == 0 {
		return out
	}

	for _, id := range ids {
		out = bytes.ReplaceAll(out, []byte(id.String()), []byte(blankID(len(id))))
	}
	sum := md5.Sum(out)
	digest := strings.Repeat(hex.EncodeToString(sum[:]), 1+len(ids[0])/32)
	for _, id := range ids {
		n := len(id)
		if n > len(digest) {
			digest = strings.Repeat(digest, 1+n/len(digest))
		}
		out = bytes.ReplaceAll(out, []byte(blankID(n)), []byte(types.HexLiteral(digest[:n]).String()))
	}
	return out
}

func blankID(n int) string {
	return types.HexLiteral(strings.Repeat("0", n)).String()
}

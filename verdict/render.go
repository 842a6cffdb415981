package verdict

import (
	"bytes"
	"html/template"
	"log"

	"npcheck/models"
	"npcheck/sites"
)

// Input is everything needed to render one verdict block.
type Input struct {
	CurrentPrice string
	AltURL       string
	Region       sites.Region // region of the page being annotated
	Response     models.AlternatePriceResponse
	Rate         models.ExchangeRateData
}

var fragments = template.Must(template.New("verdict").Parse(`
{{- define "notfound" -}}
<span style="color: orange;">Alternate site not found (404). <a href="{{.AltURL}}" target="_blank">View alternate site</a></span>
{{- end -}}
{{- define "unavailable" -}}
<span style="color: gray;">Could not fetch alternate price</span>
{{- end -}}
{{- define "unparsable" -}}
<span style="color: gray;">Unable to compare prices</span>
{{- end -}}
{{- define "full" -}}
Alternate site: {{.Alt.Currency}}{{.AltAmount}} (≈ {{.Current.Currency}}{{.Converted}})<br>
{{- if eq .Class "same" -}}
<span style="">Prices are about the same</span>
{{- else if eq .Class "alternate-cheaper" -}}
<span style="color: green;">📈 Alternate site is cheaper by {{.Current.Currency}}{{.AbsDiff}} ({{.Perc}}%)</span>
{{- else -}}
<span style="color: red;">📉 Alternate site is more expensive by {{.Current.Currency}}{{.AbsDiff}} ({{.Perc}}%)</span>
{{- end -}}
{{- if .Fallback}}<br><span style="color: gray;">(using fallback rate)</span>{{end -}}
<br><a href="{{.AltURL}}" target="_blank" rel="noopener noreferrer">View alternate site</a>
{{- end -}}
`))

type fullView struct {
	Current   sites.Meta
	Alt       sites.Meta
	AltAmount string
	Converted string
	AbsDiff   string
	Perc      string
	Class     Class
	Fallback  bool
	AltURL    string
}

// Render returns the inner HTML of the verdict block for in.
func Render(in Input) string {
	resp := in.Response
	switch {
	case resp.NotFound():
		return execute("notfound", in)
	case !resp.HasPrice():
		return execute("unavailable", in)
	}

	res, ok := Compute(in.CurrentPrice, resp.PriceText(), in.Region, in.Rate.Rate)
	if !ok {
		return execute("unparsable", in)
	}

	return execute("full", fullView{
		Current:   sites.MetaFor(in.Region),
		Alt:       sites.MetaFor(in.Region.Other()),
		AltAmount: Money(res.Alternate),
		Converted: Money(res.AltConverted),
		AbsDiff:   res.AbsDiff(),
		Perc:      Percent(res.PercDiff),
		Class:     res.Class,
		Fallback:  in.Rate.Fallback,
		AltURL:    in.AltURL,
	})
}

func execute(name string, data any) string {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("Failed to render verdict %s: %v", name, err)
		return ""
	}
	return buf.String()
}

package loader

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

const (
	gaTagURL    = "https://www.googletagmanager.com/gtag/js?id="
	baiduTagURL = "https://hm.baidu.com/hm.js?"
)

var gaInitTemplate = template.Must(template.New("ga").Parse(`
window.dataLayer = window.dataLayer || [];
function gtag(){dataLayer.push(arguments);}
gtag('js', new Date());
gtag('config', '{{js .}}', {
  page_location: window.location.href,
  page_title: document.title,
  anonymize_ip: true,
  cookie_flags: 'SameSite=None;Secure'
});
`))

var baiduTemplate = template.Must(template.New("baidu").Parse(`
var _hmt = _hmt || [];
(function() {
  var hm = document.createElement("script");
  hm.src = "{{js .}}";
  var s = document.getElementsByTagName("script")[0];
  s.parentNode.insertBefore(hm, s);
})();
`))

// LoadGA inserts the gtag.js loader and its inline initialisation.
func LoadGA(inj Injector, id string) error {
	if id == "" {
		return nil
	}

	inline, err := render(gaInitTemplate, id)
	if err != nil {
		return err
	}

	if err := inj.Inject(Script{Src: gaTagURL + url.QueryEscape(id), Async: true}); err != nil {
		return fmt.Errorf("inject gtag.js: %w", err)
	}
	if err := inj.Inject(Script{Inline: inline}); err != nil {
		return fmt.Errorf("inject gtag config: %w", err)
	}
	return nil
}

// LoadBaidu inserts the inline Tongji bootstrap, which places hm.js before
// the page's first script when it runs.
func LoadBaidu(inj Injector, id string) error {
	if id == "" {
		return nil
	}

	inline, err := render(baiduTemplate, baiduTagURL+url.QueryEscape(id))
	if err != nil {
		return err
	}

	if err := inj.Inject(Script{Inline: inline}); err != nil {
		return fmt.Errorf("inject tongji bootstrap: %w", err)
	}
	return nil
}

// LoadUmami inserts the deferred Umami tracker script.
func LoadUmami(inj Injector, id, scriptURL, hostname string) error {
	if id == "" || scriptURL == "" {
		return nil
	}

	script := Script{
		Src:   scriptURL,
		Async: true,
		Defer: true,
		Attrs: []Attr{
			{Key: "data-website-id", Value: id},
			{Key: "data-domains", Value: hostname},
		},
	}
	if err := inj.Inject(script); err != nil {
		return fmt.Errorf("inject umami script: %w", err)
	}
	return nil
}

func render(tmpl *template.Template, data string) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s snippet: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

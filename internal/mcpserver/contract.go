package mcpserver

const gemtextFormatURI = "remi://gemtext-format"

// GemtextFormat summarizes text/gemini line types for LLM consumers reading
// pages returned by the navigation tools.
const GemtextFormat = `# Gemtext Format

Pages are returned as gemtext (text/gemini). Each line has exactly one type,
decided by its first characters.

## Line types

| Prefix | Type | Notes |
|---|---|---|
| ` + "`=> URL [label]`" + ` | link | URL may be relative to the page; pass it to ` + "`navigate`" + ` as-is |
| ` + "`#`, `##`, `###`" + ` | heading | the first heading is the page title |
| ` + "`* `" + ` | list item | |
| ` + "`>`" + ` | quote | |
| ` + "```" + ` | preformat toggle | lines until the next toggle are shown verbatim |
| anything else | text | one paragraph per line; blank lines are significant |

## Browsing

1. Links are the only way to move between pages. Relative URLs resolve against
   the URL shown at the top of the result.
2. A page that asks a question returns a prompt; answer it with ` + "`submit_input`" + `
   using the prompt URL.
3. Failures (not found, certificate problems, timeouts) are recorded in the
   console; read them with ` + "`read_console`" + `.
4. Non-text responses are reported with their media type and size only.
`

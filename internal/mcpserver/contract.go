package mcpserver

// DocumentShapes describes the JSON documents every songbook publishes.
const DocumentShapes = `# Songbook Document Shapes

Every book is addressed by a short reference (` + "`ZH`, `CH`" + `, ...) and publishes
three documents under ` + "`books/<ref>/`" + `.

## summary.json

` + "```" + `json
{
  "name": { "short": "ZH", "medium": "Zion's Harp", "long": "Zion's Harp Hymnal" },
  "primaryColor": "#1f4e79",
  "secondaryColor": "#ffffff",
  "fileExtension": "png",
  "numOfSongs": 503,
  "addOn": false,
  "indexAvailable": true,
  "srcUrl": "https://example.org/zh"
}
` + "```" + `

## songs.json

A map from song number to song. Numbers are strings and may carry a
suffix (` + "`\"403a\"`" + `).

` + "```" + `json
{ "1": { "title": "Awake, My Soul" }, "403a": { "title": "Abide With Me" } }
` + "```" + `

## index.json

A map from topical section label to the ordered song numbers in it.

` + "```" + `json
{ "Praise": ["1", "12", "403a"], "Prayer": ["7"] }
` + "```" + `

## Rules

1. Prepackaged books (` + "`ZH GH JH HG`" + `) are always read from the bundled copy.
2. Other books are read from the remote mirror in production and fall back to
   the bundled copy when the mirror fails. Pass ` + "`fallback: true`" + ` to skip the mirror.
3. Only known books can be imported; prepackaged books are always available.
`

/*
Package schema defines the static description of collections, globals and their fields.

A collection is a named document type with an ordered field list. A global is a
singleton document. Fields form a closed set of kinds; composite kinds (array,
blocks, group) nest further field lists, presentational kinds (row, collapsible)
group fields without owning a data key.

# Schema Definition

A minimal schema file in YAML:

	collections:
	  - slug: pages
	    admin: { useAsTitle: title }
	    fields:
	      - { name: title, type: text, required: true }
	      - name: slug
	        type: text
	        hooks: { beforeValidate: [formatSlug] }
	      - name: layout
	        type: blocks
	        blocks:
	          - slug: content
	            fields:
	              - { name: body, type: richText }
	      - { name: author, type: relationship, relationTo: users }

	globals:
	  - slug: menu
	    fields:
	      - name: items
	        type: array
	        fields:
	          - { name: label, type: text }
	          - { name: link, type: relationship, relationTo: [pages, posts] }

# Field Kinds

  - text, textarea, email: string values
  - number:       numeric value, optional min/max
  - checkbox:     boolean value
  - select:       one of options (or many with hasMany)
  - date:         RFC 3339 timestamp string
  - json:         arbitrary JSON value
  - richText:     opaque editor state
  - relationship: ID (or {relationTo, value} when polymorphic) of documents in relationTo
  - array:        list of rows, each a document of fields
  - blocks:       list of rows, each selecting a block by blockType
  - group:        nested document under the field name
  - row, collapsible: layout only; children live in the parent document

# Hooks

Field hooks run per phase (beforeValidate, beforeChange, afterChange, afterRead).
In YAML they are named and resolved against a function registry during
sanitization; in code they are attached with Field.AddHook.

	hooks:
	  beforeChange: [trim]
	  afterRead:    [sanitizeHTML]

# Parsing

	cfg, err := schema.ParseFile("schema/pages.yaml")
	cfg, err := schema.ParseDir("schema/")

Parsed configs must be sanitized before the hook pipeline uses them.
*/
package schema

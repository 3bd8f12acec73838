// Package schema is the central, data-only description of the exported
// objects and their relationships. It performs no I/O so it can serve index
// builders, the relational store builder, and completeness checks alike.
package schema

import (
	"fmt"
	"strings"
)

// Object describes one exported object type.
type Object struct {
	// APIName is the platform API name (e.g. "Account", "ContentDocument").
	APIName string
	// Label is a human-friendly label for UIs.
	Label string
	// TableName is the name used for CSV and store tables (lower_snake_case).
	TableName string
	// IDField is the primary key field on this object.
	IDField string
}

// Relationship is a parent/child relationship between two objects: one child
// field pointing at the parent's id. Parent "*" means a polymorphic parent
// (any object type). Descriptors are static and never mutated at runtime.
type Relationship struct {
	Name       string
	Parent     string
	Child      string
	ChildField string
}

// PolymorphicParent is the wildcard parent for relationships whose parent can
// be any object type.
const PolymorphicParent = "*"

// Objects is the registry of exported object types, keyed by API name.
var Objects = map[string]Object{
	"Account":             {APIName: "Account", Label: "Account", TableName: "account", IDField: "Id"},
	"Opportunity":         {APIName: "Opportunity", Label: "Opportunity", TableName: "opportunity", IDField: "Id"},
	"Contact":             {APIName: "Contact", Label: "Contact", TableName: "contact", IDField: "Id"},
	"ContentDocument":     {APIName: "ContentDocument", Label: "Content Document", TableName: "content_document", IDField: "Id"},
	"ContentVersion":      {APIName: "ContentVersion", Label: "Content Version", TableName: "content_version", IDField: "Id"},
	"ContentDocumentLink": {APIName: "ContentDocumentLink", Label: "Content Document Link", TableName: "content_document_link", IDField: "Id"},
	"Attachment":          {APIName: "Attachment", Label: "Legacy Attachment", TableName: "attachment", IDField: "Id"},
}

// EssentialObjects is the fixed list of object types an export is expected to
// contain; the inventory auditor compares flat tables on disk against it.
var EssentialObjects = []string{
	"Account",
	"Opportunity",
	"Contact",
	"ContentDocument",
	"ContentVersion",
	"ContentDocumentLink",
	"Attachment",
}

// Relationships is the registry of declared parent/child relationships.
var Relationships = []Relationship{
	{Name: "Account_Opportunity", Parent: "Account", Child: "Opportunity", ChildField: "AccountId"},
	{Name: "Account_Contact", Parent: "Account", Child: "Contact", ChildField: "AccountId"},
	{Name: "ContentDocument_ContentVersion", Parent: "ContentDocument", Child: "ContentVersion", ChildField: "ContentDocumentId"},
	{Name: "Parent_ContentDocumentLink", Parent: PolymorphicParent, Child: "ContentDocumentLink", ChildField: "LinkedEntityId"},
	{Name: "ContentDocumentLink_ContentDocument", Parent: "ContentDocument", Child: "ContentDocumentLink", ChildField: "ContentDocumentId"},
	{Name: "Parent_Attachment", Parent: PolymorphicParent, Child: "Attachment", ChildField: "ParentId"},
}

// Get returns the Object definition for the given API name.
func Get(apiName string) (Object, error) {
	obj, ok := Objects[apiName]
	if !ok {
		return Object{}, fmt.Errorf("unknown object %q", apiName)
	}
	return obj, nil
}

// ChildrenOf returns relationships where the given object is the parent.
// Polymorphic relationships apply to every parent type.
func ChildrenOf(parentAPIName string) []Relationship {
	var out []Relationship
	for _, rel := range Relationships {
		if rel.Parent == parentAPIName || rel.Parent == PolymorphicParent {
			out = append(out, rel)
		}
	}
	return out
}

// ParentsOf returns relationships where the given object is the child.
func ParentsOf(childAPIName string) []Relationship {
	var out []Relationship
	for _, rel := range Relationships {
		if rel.Child == childAPIName {
			out = append(out, rel)
		}
	}
	return out
}

// IndexConfig describes one store index derived from a relationship.
type IndexConfig struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// DefaultIndexConfigs derives one non-unique index per declared relationship
// on the child table's foreign-key column. The downstream viewer only ever
// asks "all children of a given parent id", so without these every lookup
// degrades to a full scan.
func DefaultIndexConfigs() []IndexConfig {
	var out []IndexConfig
	for _, rel := range Relationships {
		child, ok := Objects[rel.Child]
		if !ok {
			continue
		}
		out = append(out, IndexConfig{
			Name:    fmt.Sprintf("idx_%s_%s", child.TableName, strings.ToLower(rel.ChildField)),
			Table:   child.TableName,
			Columns: []string{rel.ChildField},
		})
	}
	return out
}


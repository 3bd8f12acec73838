package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/pkg/export/schema"
)

func TestGet(t *testing.T) {
	t.Run("known object", func(t *testing.T) {
		obj, err := schema.Get("ContentVersion")
		require.NoError(t, err)
		require.Equal(t, "content_version", obj.TableName)
		require.Equal(t, "Id", obj.IDField)
	})

	t.Run("unknown object", func(t *testing.T) {
		_, err := schema.Get("CustomThing__c")
		require.Error(t, err)
	})
}

func TestChildrenOf(t *testing.T) {
	rels := schema.ChildrenOf("Account")
	names := make([]string, 0, len(rels))
	for _, r := range rels {
		names = append(names, r.Name)
	}
	require.Contains(t, names, "Account_Opportunity")
	require.Contains(t, names, "Account_Contact")
	// polymorphic relationships apply to every parent
	require.Contains(t, names, "Parent_ContentDocumentLink")
	require.Contains(t, names, "Parent_Attachment")
	require.NotContains(t, names, "ContentDocument_ContentVersion")
}

func TestParentsOf(t *testing.T) {
	rels := schema.ParentsOf("ContentDocumentLink")
	require.Len(t, rels, 2)
	fields := []string{rels[0].ChildField, rels[1].ChildField}
	require.ElementsMatch(t, []string{"LinkedEntityId", "ContentDocumentId"}, fields)
}

func TestDefaultIndexConfigs(t *testing.T) {
	cfgs := schema.DefaultIndexConfigs()
	require.Len(t, cfgs, len(schema.Relationships))

	byName := make(map[string]schema.IndexConfig)
	for _, c := range cfgs {
		byName[c.Name] = c
	}

	opp, ok := byName["idx_opportunity_accountid"]
	require.True(t, ok)
	require.Equal(t, "opportunity", opp.Table)
	require.Equal(t, []string{"AccountId"}, opp.Columns)
	require.False(t, opp.Unique)

	link, ok := byName["idx_content_document_link_linkedentityid"]
	require.True(t, ok)
	require.Equal(t, []string{"LinkedEntityId"}, link.Columns)
}

package migrate

import (
	"gorm.io/gorm"

	"orgops/internal/models"
)

// All returns the migrations in application order. IDs are never reused
// or reordered.
func All() []Migration {
	return []Migration{
		{ID: "0001_core", Up: coreTables},
		{ID: "0002_operations", Up: operationsTables},
		{ID: "0003_canvas", Up: canvasTables},
		{ID: "0004_conversations", Up: conversationTables},
		{ID: "0005_tenant_unique_indexes", Up: tenantUniqueIndexes},
		{ID: "0006_goal_progress", Up: goalProgress},
	}
}

func coreTables(tx *gorm.DB) error {
	// Role's many2many creates role_permissions alongside roles.
	return createTables(tx,
		&models.Organization{},
		&models.Permission{},
		&models.User{},
		&models.Role{},
		&models.RoleAssignment{},
		&models.AuditLog{},
	)
}

func operationsTables(tx *gorm.DB) error {
	return createTables(tx,
		&models.ResourceSubtype{},
		&models.Resource{},
		&models.Function{},
		&models.FunctionCapability{},
		&models.Process{},
		&models.Activity{},
		&models.ActivityEdge{},
		&models.Goal{},
	)
}

func canvasTables(tx *gorm.DB) error {
	return createTables(tx,
		&models.Canvas{},
		&models.CanvasBlock{},
		&models.BlockReference{},
		&models.Partner{},
		&models.Channel{},
		&models.ValueProposition{},
		&models.CustomerRelationship{},
		&models.RevenueStream{},
	)
}

func conversationTables(tx *gorm.DB) error {
	return createTables(tx,
		&models.AiAgent{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.PendingAction{},
	)
}

var liveUniqueIndexes = []uniqueIndex{
	{"roles", "ux_roles_org_slug", "org_id, slug"},
	{"resources", "ux_resources_org_name", "org_id, name"},
	{"resource_subtypes", "ux_resource_subtypes_org_type_name", "org_id, resource_type, name"},
	{"functions", "ux_functions_org_name", "org_id, name"},
	{"function_capabilities", "ux_function_capabilities_fn_name", "org_id, function_id, name"},
	{"processes", "ux_processes_org_name", "org_id, name"},
	{"activity_edges", "ux_activity_edges_pair", "org_id, source_id, target_id"},
	{"canvases", "ux_canvases_org_name", "org_id, name"},
	{"canvas_blocks", "ux_canvas_blocks_type", "org_id, canvas_id, type"},
	{"block_references", "ux_block_references_target", "org_id, block_id, kind, entity_id"},
	{"partners", "ux_partners_org_name", "org_id, name"},
	{"channels", "ux_channels_org_name", "org_id, name"},
	{"value_propositions", "ux_value_propositions_org_name", "org_id, name"},
	{"customer_relationships", "ux_customer_relationships_org_name", "org_id, name"},
	{"revenue_streams", "ux_revenue_streams_org_name", "org_id, name"},
	{"ai_agents", "ux_ai_agents_org_name", "org_id, name"},
}

func tenantUniqueIndexes(tx *gorm.DB) error {
	for _, idx := range liveUniqueIndexes {
		if err := createLiveUniqueIndex(tx, idx); err != nil {
			return err
		}
	}
	return nil
}

// goalProgress predates the Progress field on databases created before
// key results tracked a percentage.
func goalProgress(tx *gorm.DB) error {
	return addColumn(tx, &models.Goal{}, "Progress")
}

package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Diagrams are authored elsewhere and read-only to the engine
			CREATE TABLE diagrams (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE TABLE diagram_nodes (
				diagram_id VARCHAR(255) NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				data JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (diagram_id, node_id)
			);

			CREATE INDEX idx_diagram_nodes_type ON diagram_nodes(node_type);

			CREATE TABLE diagram_connections (
				diagram_id VARCHAR(255) NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (diagram_id, id)
			);

			CREATE INDEX idx_diagram_connections_source ON diagram_connections(diagram_id, source_node_id);
			CREATE INDEX idx_diagram_connections_target ON diagram_connections(diagram_id, target_node_id);
		`,
		2: `
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				diagram_id VARCHAR(255) NOT NULL REFERENCES diagrams(id),
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'waiting', 'completed', 'error', 'cancelled')),
				context JSONB NOT NULL DEFAULT '{}',
				start_mapping_id VARCHAR(255) NOT NULL,
				start_object_id VARCHAR(255) NOT NULL,
				started_by VARCHAR(255) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_workflow_instances_running_subject
				ON workflow_instances(diagram_id, start_mapping_id, start_object_id, started_by)
				WHERE status IN ('active', 'waiting');

			CREATE INDEX idx_workflow_instances_subject
				ON workflow_instances(diagram_id, start_mapping_id, start_object_id);

			CREATE TABLE node_states (
				id VARCHAR(255) PRIMARY KEY,
				workflow_instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'active', 'waiting', 'completed', 'error')),
				inputs_required INTEGER NOT NULL DEFAULT 0,
				inputs_received INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_instance_id, node_id)
			);

			CREATE INDEX idx_node_states_status ON node_states(workflow_instance_id, status);

			CREATE TABLE node_approvals (
				id VARCHAR(255) PRIMARY KEY,
				node_state_id VARCHAR(255) NOT NULL REFERENCES node_states(id) ON DELETE CASCADE,
				user_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (node_state_id, user_id)
			);
		`,
		3: `
			CREATE TABLE notifications (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				node_state_id VARCHAR(255) NOT NULL,
				recipient_id VARCHAR(255) NOT NULL,
				sender_id VARCHAR(255) NOT NULL DEFAULT '',
				sender_name VARCHAR(255) NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				needs_action BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_notifications_recipient ON notifications(recipient_id, created_at);

			-- Directory tables mirror the host application's users, roles and labels
			CREATE TABLE directory_users (
				id VARCHAR(255) PRIMARY KEY,
				email VARCHAR(255) NOT NULL DEFAULT '',
				display_name VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE TABLE directory_user_roles (
				user_id VARCHAR(255) NOT NULL REFERENCES directory_users(id) ON DELETE CASCADE,
				role_id VARCHAR(255) NOT NULL,
				PRIMARY KEY (user_id, role_id)
			);

			CREATE INDEX idx_directory_user_roles_role ON directory_user_roles(role_id);

			CREATE TABLE trigger_events (
				name VARCHAR(255) PRIMARY KEY,
				display_name VARCHAR(255) NOT NULL
			);

			CREATE TABLE object_mappings (
				id VARCHAR(255) PRIMARY KEY,
				display_name VARCHAR(255) NOT NULL
			);
		`,
	}
}

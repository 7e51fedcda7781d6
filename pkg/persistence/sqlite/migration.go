package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE diagrams (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE diagram_nodes (
				diagram_id TEXT NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
				node_id TEXT NOT NULL,
				node_type TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				data TEXT NOT NULL DEFAULT '{}',
				PRIMARY KEY (diagram_id, node_id)
			);

			CREATE INDEX idx_diagram_nodes_type ON diagram_nodes(node_type);

			CREATE TABLE diagram_connections (
				diagram_id TEXT NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				source_node_id TEXT NOT NULL,
				target_node_id TEXT NOT NULL,
				data TEXT NOT NULL DEFAULT '{}',
				PRIMARY KEY (diagram_id, id)
			);

			CREATE INDEX idx_diagram_connections_source ON diagram_connections(diagram_id, source_node_id);
			CREATE INDEX idx_diagram_connections_target ON diagram_connections(diagram_id, target_node_id);
		`,
		2: `
			CREATE TABLE workflow_instances (
				id TEXT PRIMARY KEY,
				diagram_id TEXT NOT NULL REFERENCES diagrams(id),
				status TEXT NOT NULL CHECK (status IN ('active', 'waiting', 'completed', 'error', 'cancelled')),
				context TEXT NOT NULL DEFAULT '{}',
				start_mapping_id TEXT NOT NULL,
				start_object_id TEXT NOT NULL,
				started_by TEXT NOT NULL,
				started_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP
			);

			CREATE UNIQUE INDEX idx_workflow_instances_running_subject
				ON workflow_instances(diagram_id, start_mapping_id, start_object_id, started_by)
				WHERE status IN ('active', 'waiting');

			CREATE INDEX idx_workflow_instances_subject
				ON workflow_instances(diagram_id, start_mapping_id, start_object_id);

			CREATE TABLE node_states (
				id TEXT PRIMARY KEY,
				workflow_instance_id TEXT NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				node_id TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('pending', 'active', 'waiting', 'completed', 'error')),
				inputs_required INTEGER NOT NULL DEFAULT 0,
				inputs_received INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE (workflow_instance_id, node_id)
			);

			CREATE INDEX idx_node_states_status ON node_states(workflow_instance_id, status);

			CREATE TABLE node_approvals (
				id TEXT PRIMARY KEY,
				node_state_id TEXT NOT NULL REFERENCES node_states(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE (node_state_id, user_id)
			);
		`,
		3: `
			CREATE TABLE notifications (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				node_state_id TEXT NOT NULL,
				recipient_id TEXT NOT NULL,
				sender_id TEXT NOT NULL DEFAULT '',
				sender_name TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				needs_action BOOLEAN NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_notifications_recipient ON notifications(recipient_id, created_at);

			CREATE TABLE directory_users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				display_name TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE directory_user_roles (
				user_id TEXT NOT NULL REFERENCES directory_users(id) ON DELETE CASCADE,
				role_id TEXT NOT NULL,
				PRIMARY KEY (user_id, role_id)
			);

			CREATE INDEX idx_directory_user_roles_role ON directory_user_roles(role_id);

			CREATE TABLE trigger_events (
				name TEXT PRIMARY KEY,
				display_name TEXT NOT NULL
			);

			CREATE TABLE object_mappings (
				id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL
			);
		`,
	}
}

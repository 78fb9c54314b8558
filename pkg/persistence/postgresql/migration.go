package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Condition groups are stored flat: one row per group node, with
			-- parent_group_id + position giving each node its place in the
			-- tree and root_group_id giving cheap whole-tree fetches.
			CREATE TABLE condition_groups (
				id VARCHAR(255) PRIMARY KEY,
				root_group_id VARCHAR(255) NOT NULL,
				parent_group_id VARCHAR(255) REFERENCES condition_groups(id) ON DELETE CASCADE,
				workflow_step_id VARCHAR(255) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				operator VARCHAR(10) NOT NULL CHECK (operator IN ('and', 'or', 'not')),
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deactivated_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_condition_groups_root ON condition_groups(root_group_id);
			CREATE INDEX idx_condition_groups_parent ON condition_groups(parent_group_id);
			CREATE INDEX idx_condition_groups_step ON condition_groups(workflow_step_id);

			CREATE TABLE conditions (
				id VARCHAR(255) PRIMARY KEY,
				group_id VARCHAR(255) NOT NULL REFERENCES condition_groups(id) ON DELETE CASCADE,
				position INT NOT NULL DEFAULT 0,
				language VARCHAR(20) NOT NULL DEFAULT 'structured',
				field_path VARCHAR(1024),
				operator VARCHAR(50),
				value JSONB,
				case_sensitive BOOLEAN NOT NULL DEFAULT false,
				expression TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deactivated_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_conditions_group ON conditions(group_id);

			CREATE TABLE conditional_actions (
				id VARCHAR(255) PRIMARY KEY,
				group_id VARCHAR(255) NOT NULL REFERENCES condition_groups(id),
				action_type VARCHAR(50) NOT NULL,
				params JSONB NOT NULL DEFAULT '{}',
				execution_order INT NOT NULL DEFAULT 0,
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deactivated_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_conditional_actions_group ON conditional_actions(group_id);
			CREATE INDEX idx_conditional_actions_order ON conditional_actions(group_id, execution_order);

			CREATE TABLE escalation_rules (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255),
				trigger_kind VARCHAR(50) NOT NULL,
				threshold_ns BIGINT NOT NULL DEFAULT 0,
				condition_group_id VARCHAR(255) REFERENCES condition_groups(id),
				action_type VARCHAR(50) NOT NULL,
				action_params JSONB NOT NULL DEFAULT '{}',
				max_level INT NOT NULL DEFAULT 1,
				repeat_interval_ns BIGINT,
				on_max VARCHAR(20) NOT NULL DEFAULT 'stop',
				terminal_type VARCHAR(50),
				terminal_params JSONB,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deactivated_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_escalation_rules_workflow ON escalation_rules(workflow_id);
			CREATE INDEX idx_escalation_rules_active ON escalation_rules(active);

			CREATE TABLE escalation_instances (
				id VARCHAR(255) PRIMARY KEY,
				rule_id VARCHAR(255) NOT NULL REFERENCES escalation_rules(id),
				step_instance_id VARCHAR(255) NOT NULL,
				level INT NOT NULL DEFAULT 1,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'triggered', 'resolved', 'suppressed')),
				triggered_at TIMESTAMP WITH TIME ZONE,
				resolved_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_escalation_instances_rule ON escalation_instances(rule_id);
			CREATE INDEX idx_escalation_instances_step ON escalation_instances(step_instance_id);
			CREATE INDEX idx_escalation_instances_status ON escalation_instances(status);

			-- At most one pending instance per (rule, step instance). Concurrent
			-- scans race on this index instead of double-creating.
			CREATE UNIQUE INDEX idx_escalation_instances_pending
				ON escalation_instances(rule_id, step_instance_id)
				WHERE status = 'pending';

			CREATE TABLE condition_evaluations (
				id VARCHAR(255) PRIMARY KEY,
				group_id VARCHAR(255) NOT NULL,
				step_instance_id VARCHAR(255) NOT NULL,
				result BOOLEAN NOT NULL,
				evaluated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				context_snapshot JSONB,
				trace JSONB,
				error TEXT
			);

			CREATE INDEX idx_condition_evaluations_step ON condition_evaluations(step_instance_id, evaluated_at);
			CREATE INDEX idx_condition_evaluations_group ON condition_evaluations(group_id);

			CREATE TABLE action_executions (
				id VARCHAR(255) PRIMARY KEY,
				action_id VARCHAR(255) NOT NULL,
				step_instance_id VARCHAR(255) NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('succeeded', 'failed', 'skipped')),
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				error TEXT,
				side_effect_ref VARCHAR(255)
			);

			CREATE INDEX idx_action_executions_step ON action_executions(step_instance_id, executed_at);
			CREATE INDEX idx_action_executions_action ON action_executions(action_id);
			CREATE INDEX idx_action_executions_idempotency ON action_executions(action_id, step_instance_id, event_id);
		`,
	}
}

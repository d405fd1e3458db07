package patterns

// =============================================================================
// RULE DEFINITIONS BY CATEGORY
// All detection rules are registered here and compiled once at registry
// construction. Keep patterns simple and anchored on literal phrases:
// the filter runs on every AI response and must never backtrack badly.
//
// Weights feed the normalized risk score (sum / normalizer, capped at 1.0
// with a 0.25 disclaimer threshold). A single rule at weight >= 2.5 flags
// on its own; lighter rules need corroboration from other categories.
// =============================================================================

// --- DIRECT ADVICE (second-person legal directives) ---
func (r *Registry) registerDirectAdviceRules() {
	cat := CategoryDirectAdvice

	r.register("should_take_action", `(?i)\byou should (file|sue|sign|settle|appeal|respond|plead|refuse|accept|reject)\b`, cat, SeverityHigh, 3.0, "Second-person directive to take legal action")
	r.register("should_file_for", `(?i)\byou should file for\b`, cat, SeverityHigh, 3.0, "Directive to file a legal proceeding")
	r.register("need_to_act", `(?i)\byou need to (file|sue|respond|appear|submit|sign|hire)\b`, cat, SeverityHigh, 3.0, "Second-person obligation to take legal action")
	r.register("must_act", `(?i)\byou must (file|respond|appear|submit|sign|pay|comply)\b`, cat, SeverityHigh, 3.2, "Second-person legal obligation statement")
	r.register("recommend_action", `(?i)\bi recommend (that you )?(filing|suing|signing|settling|appealing|you file|you sue|you sign|you settle)\b`, cat, SeverityHigh, 3.0, "First-person recommendation of legal action")
	r.register("best_course", `(?i)\byour best (course of action|option|bet|move) is\b`, cat, SeverityMedium, 2.6, "Designating a best legal course of action")
	r.register("advise_against", `(?i)\bi('d| would)? ?advise (you )?against\b`, cat, SeverityHigh, 3.0, "First-person advising against an action")
	r.register("suggest_legal_step", `(?i)\bi suggest (that )?you (file|sue|sign|settle|contest|dispute)\b`, cat, SeverityMedium, 2.6, "Suggesting a specific legal step")

	// Entitlement/outcome assertions - advice by implication.
	r.register("entitled_to", `(?i)\byou('re| are) (legally )?entitled to\b`, cat, SeverityMedium, 2.0, "Asserting legal entitlement")
	r.register("liable_assertion", `(?i)\byou('re| are) (not )?(legally )?liable\b`, cat, SeverityMedium, 2.0, "Asserting legal liability")
}

// --- PROFESSIONAL SERVICES (speaking as counsel / offering representation) ---
func (r *Registry) registerProfessionalServiceRules() {
	cat := CategoryProfessionalService

	r.register("my_legal_advice", `(?i)\bmy (legal )?advice (is|would be)\b`, cat, SeverityHigh, 3.2, "Framing output as personal legal advice")
	r.register("professional_opinion", `(?i)\bin my (professional|legal) opinion\b`, cat, SeverityHigh, 3.0, "Professional-opinion framing")
	r.register("offer_representation", `(?i)\bi (can|will|could) (represent|defend) you\b`, cat, SeverityHigh, 3.4, "Offering legal representation")
	r.register("offer_drafting", `(?i)\bi (can|will|could) (draft|prepare|file) (your|the) (contract|will|complaint|motion|lawsuit|trust)\b`, cat, SeverityMedium, 2.6, "Offering to prepare legal instruments")
	r.register("attorney_client", `(?i)\b(our|an) attorney.client (relationship|privilege) (exists|applies|protects)\b`, cat, SeverityMedium, 2.4, "Implying an attorney-client relationship")
}

// --- TIMING-CRITICAL (deadline and limitations directives) ---
func (r *Registry) registerTimingCriticalRules() {
	cat := CategoryTimingCritical

	r.register("file_by_deadline", `(?i)\byou (must|need to|should|have to) file (before|by|within|no later than)\b`, cat, SeverityHigh, 3.2, "Deadline-bound filing directive")
	r.register("respond_within", `(?i)\byou (must|need to|have to) (respond|answer|reply) within \d+\b`, cat, SeverityHigh, 3.0, "Deadline-bound response directive")
	r.register("limitations_directive", `(?i)\b(the )?statute of limitations (requires you|means you (must|need)|expires|runs out)\b`, cat, SeverityMedium, 2.6, "Limitations-period directive")
	r.register("act_now_or_lose", `(?i)\bact (now|immediately|quickly) (or|to) (you('ll| will) )?(lose|preserve|protect|forfeit) (your|the) (rights?|claims?|case)\b`, cat, SeverityHigh, 3.0, "Urgency framing around legal rights")
	r.register("miss_deadline_consequence", `(?i)\bif you miss (this|the) deadline,? you (will|'ll) (lose|forfeit|waive)\b`, cat, SeverityMedium, 2.6, "Deadline consequence directive")
}

// --- BUSINESS FORMATION ---
func (r *Registry) registerBusinessFormationRules() {
	cat := CategoryBusinessFormation

	r.register("consider_forming", `(?i)\byou (might|may) want to consider (establishing|forming|creating|setting up|incorporating)\b`, cat, SeverityMedium, 3.0, "Hedged suggestion to form a business entity")
	r.register("should_form_entity", `(?i)\byou should (form|create|establish|incorporate|register) (an?|your) (llc|corporation|partnership|business entity|s.corp|nonprofit)\b`, cat, SeverityHigh, 3.2, "Directive to form a business entity")
	r.register("entity_choice_advice", `(?i)\b(an? )?(llc|s.corp|c.corp) (is|would be) (the )?(best|right|better) (choice|structure|option) for you\b`, cat, SeverityMedium, 2.8, "Choosing an entity structure for the user")
	r.register("dissolve_directive", `(?i)\byou should (dissolve|wind (up|down)|liquidate) (the|your) (company|llc|corporation|partnership)\b`, cat, SeverityMedium, 2.8, "Directive to dissolve a business entity")
}

// --- ESTATE PLANNING ---
func (r *Registry) registerEstatePlanningRules() {
	cat := CategoryEstatePlanning

	r.register("should_make_will", `(?i)\byou (should|need to|must) (create|make|update|revise|have) (a|your) (will|living will|trust|estate plan)\b`, cat, SeverityHigh, 3.0, "Directive to create or change estate documents")
	r.register("trust_transfer", `(?i)\b(put|place|transfer) your (assets|property|house|home) (in|into) a (living )?trust\b`, cat, SeverityMedium, 2.8, "Directive to move assets into a trust")
	r.register("beneficiary_designation", `(?i)\byou should name \w+( \w+)? as (your )?(beneficiary|executor|trustee)\b`, cat, SeverityMedium, 2.6, "Directive on beneficiary or fiduciary designation")
	r.register("disinherit_advice", `(?i)\b(to )?disinherit\b.{0,40}\byou (should|can|need to)\b`, cat, SeverityMedium, 2.6, "Advice on disinheriting an heir")
}

// --- CONDITIONAL ADVICE (hedged or situational directives) ---
func (r *Registry) registerConditionalAdviceRules() {
	cat := CategoryConditionalAdvice

	r.register("if_i_were_you", `(?i)\bif i were you,? i('d| would)\b`, cat, SeverityMedium, 2.8, "First-person hypothetical advice")
	r.register("in_your_situation", `(?i)\bin your (case|situation|circumstances),? (you|it) (should|would be (best|wise)|ought to)\b`, cat, SeverityMedium, 2.8, "Situational second-person advice")
	r.register("probably_best_to", `(?i)\bit('s| is) (probably |likely )?(best|advisable|wise|smart) (for you )?to (file|sue|sign|settle|respond|wait|refuse)\b`, cat, SeverityMedium, 2.6, "Hedged directive toward legal action")
	r.register("could_just_ignore", `(?i)\byou (could|can|may) (probably )?(just )?(ignore|disregard|skip) (the|that|this) (summons|subpoena|notice|lawsuit|letter)\b`, cat, SeverityHigh, 3.2, "Advising inaction on legal process")
	r.register("worth_suing", `(?i)\bit('s| is|'d| would be) worth (suing|filing|appealing|contesting)\b`, cat, SeverityMedium, 2.6, "Value judgment on pursuing legal action")
}

// --- EDUCATIONAL EXCLUSIONS (negative rules - suppress advice matches) ---
// These patterns mark spans as informational. An exclusion overlapping or
// closely preceding a non-critical advice match suppresses it. Exclusions
// never suppress critical-directive matches and contribute no risk weight.
func (r *Registry) registerEducationalExclusionRules() {
	cat := CategoryEducationalExclusion

	r.register("educational_purposes", `(?i)\bfor (educational|informational|illustrative) purposes( only)?\b`, cat, SeverityLow, 0, "Educational-purpose disclaimer")
	r.register("not_legal_advice", `(?i)\bthis is (general information,? )?not legal advice\b`, cat, SeverityLow, 0, "Explicit not-legal-advice disclaimer")
	r.register("general_information", `(?i)\bas (general|background) information\b`, cat, SeverityLow, 0, "General-information framing")
	r.register("generally_speaking", `(?i)\bgenerally( speaking)?,? (the law|courts|statutes)\b`, cat, SeverityLow, 0, "General statement about the law")
	r.register("law_provides", `(?i)\b(law|statute|code|act) (provides|establishes|defines|sets out|recognizes)\b`, cat, SeverityLow, 0, "Descriptive statement of what the law provides")
	r.register("courts_have_held", `(?i)\bcourts (have (held|ruled|found)|generally)\b`, cat, SeverityLow, 0, "Descriptive statement of case law")
	r.register("hypothetical_framing", `(?i)\b(hypothetically|in a hypothetical|as an example|for example)\b`, cat, SeverityLow, 0, "Hypothetical or example framing")
	r.register("textbook_framing", `(?i)\b(a|this) (textbook|treatise|law review|course) (explains|describes|discusses)\b`, cat, SeverityLow, 0, "Academic source framing")
}

// --- CRITICAL DIRECTIVES (never neutralizable - unconditional block) ---
// Intentionally small and conservative: a hit here blocks the response
// outright with no substitution attempt, so precision matters far more
// than recall. Anything borderline belongs in the advice categories above.
func (r *Registry) registerCriticalDirectiveRules() {
	cat := CategoryCriticalDirective

	r.register("definitely_take_action", `(?i)\byou (should|must) (definitely|absolutely|certainly) (sue|file|sign|settle|plead|appeal)\b`, cat, SeverityCritical, 6.0, "Unequivocal directive to take legal action")
	r.register("as_your_attorney", `(?i)\bas your (attorney|lawyer|legal counsel)\b`, cat, SeverityCritical, 6.0, "Claiming to act as the user's attorney")
	r.register("strong_case_assertion", `(?i)\byou (definitely |clearly )?have a strong (case|claim|lawsuit)\b`, cat, SeverityCritical, 6.0, "Asserting case merits as counsel would")
	r.register("i_advise_you", `(?i)\bi (hereby )?(advise|am advising|counsel) you to\b`, cat, SeverityCritical, 6.0, "Explicit advising language")
	r.register("outcome_guarantee", `(?i)\byou (will|are going to|are guaranteed to) (win|lose|prevail in) (your|this|the) (case|lawsuit|appeal|claim)\b`, cat, SeverityCritical, 6.0, "Guaranteeing a legal outcome")
	r.register("plead_directive", `(?i)\byou (should|must|need to) plead (guilty|not guilty|no contest)\b`, cat, SeverityCritical, 6.0, "Directive on a criminal plea")
	r.register("destroy_evidence", `(?i)\b(destroy|delete|shred|get rid of) (the|those|any|all) (documents?|records?|evidence|emails?)\b.{0,40}\b(before|so that|in case)\b`, cat, SeverityCritical, 6.0, "Directive to destroy evidence")
}
